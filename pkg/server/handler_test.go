package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/NERVsystems/osmbounds/pkg/boundary"
	"github.com/NERVsystems/osmbounds/pkg/osm"
	"github.com/NERVsystems/osmbounds/pkg/tools"
)

const triangle = `<osm version="0.6">
  <node id="1" lat="52.0" lon="13.0"/>
  <node id="2" lat="52.0" lon="14.0"/>
  <node id="3" lat="53.0" lon="13.5"/>
  <way id="10"><nd ref="1"/><nd ref="2"/></way>
  <way id="11"><nd ref="2"/><nd ref="3"/><nd ref="1"/></way>
  <way id="12"><nd ref="1"/><nd ref="3"/></way>
  <relation id="7">
    <member type="way" ref="10" role="outer"/>
    <member type="way" ref="11" role="outer"/>
    <tag k="name" v="Triangle"/>
  </relation>
  <relation id="8">
    <member type="way" ref="10" role="outer"/>
  </relation>
</osm>`

type staticSource string

func (s staticSource) Fetch(context.Context, osm.Kind, int64) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(string(s))), nil
}

func (s staticSource) Invalidate(context.Context, osm.Kind, int64) error { return nil }

var testSource = staticSource(triangle)

func newTestHandler() *Handler {
	registry := tools.NewRegistry(discardLogger(), boundary.NewAssembler(testSource))
	return NewHandler(registry, discardLogger())
}

func TestHandlerBoundary(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		status      int
		contentType string
	}{
		{"summary", "/boundary/7", http.StatusOK, "application/json"},
		{"geojson", "/boundary/7?format=geojson", http.StatusOK, "application/geo+json"},
		{"rings", "/boundary/7?format=rings", http.StatusOK, "application/json"},
		{"bad format", "/boundary/7?format=kml", http.StatusBadRequest, "application/json"},
		{"bad id", "/boundary/berlin", http.StatusBadRequest, "application/json"},
		{"not found", "/boundary/99", http.StatusNotFound, "application/json"},
		{"unclosed", "/boundary/8", http.StatusUnprocessableEntity, "application/json"},
		{"check", "/boundary/8/check", http.StatusOK, "application/json"},
	}

	h := newTestHandler()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body)
			}
			if ct := rec.Header().Get("Content-Type"); ct != tt.contentType {
				t.Errorf("Content-Type = %q, want %q", ct, tt.contentType)
			}
		})
	}
}

func TestHandlerSummaryBody(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boundary/7", nil))

	var s tools.BoundarySummary
	if err := json.Unmarshal(rec.Body.Bytes(), &s); err != nil {
		t.Fatal(err)
	}
	if s.Name != "Triangle" || s.OuterRings != 1 || s.OuterNodes != 3 {
		t.Errorf("unexpected summary %+v", s)
	}
}

func TestHandlerMethodNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/boundary/7", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}
