package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/banshee-data/activealign/internal/httputil"
	"github.com/banshee-data/activealign/internal/store"
)

// Reader is the read side of the scan store.
type Reader interface {
	RecentScans(ctx context.Context, limit int) ([]store.ScanRecord, error)
	GetScan(ctx context.Context, id string) (*store.ScanRecord, error)
	ScanCurves(ctx context.Context, id string) ([]store.CurveRecord, error)
}

// Server serves stored scans.
type Server struct {
	reader Reader
}

// NewServer returns a server reading from r.
func NewServer(r Reader) *Server {
	return &Server{reader: r}
}

// Register mounts the routes:
//
//	GET /api/scans?limit=N
//	GET /api/scans/{id}
//	GET /report/{id}
//	GET /report/{id}/layer/{layer}
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/scans", s.listScans)
	mux.HandleFunc("GET /api/scans/{id}", s.getScan)
	mux.HandleFunc("GET /report/{id}", s.renderReport)
	mux.HandleFunc("GET /report/{id}/layer/{layer}", s.renderLayer)
}

type scanDetail struct {
	Scan   *store.ScanRecord   `json:"scan"`
	Curves []store.CurveRecord `json:"curves"`
}

func (s *Server) listScans(w http.ResponseWriter, r *http.Request) {
	limit, ok := httputil.QueryInt(r, "limit", 50, 1)
	if !ok {
		httputil.BadRequest(w, "limit must be a positive integer")
		return
	}
	scans, err := s.reader.RecentScans(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if scans == nil {
		scans = []store.ScanRecord{}
	}
	httputil.WriteJSONOK(w, scans)
}

func (s *Server) load(w http.ResponseWriter, r *http.Request) (*store.ScanRecord, []store.CurveRecord, bool) {
	id := r.PathValue("id")
	rec, err := s.reader.GetScan(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		httputil.NotFound(w, fmt.Sprintf("scan %s not found", id))
		return nil, nil, false
	}
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return nil, nil, false
	}
	curves, err := s.reader.ScanCurves(r.Context(), id)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return nil, nil, false
	}
	return rec, curves, true
}

func (s *Server) getScan(w http.ResponseWriter, r *http.Request) {
	rec, curves, ok := s.load(w, r)
	if !ok {
		return
	}
	if curves == nil {
		curves = []store.CurveRecord{}
	}
	httputil.WriteJSONOK(w, scanDetail{Scan: rec, Curves: curves})
}

func (s *Server) renderReport(w http.ResponseWriter, r *http.Request) {
	rec, curves, ok := s.load(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := RenderPage(&buf, rec, FromRecords(curves)); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteBody(w, "text/html; charset=utf-8", buf.Bytes())
}

func (s *Server) renderLayer(w http.ResponseWriter, r *http.Request) {
	layer, err := strconv.Atoi(r.PathValue("layer"))
	if err != nil || layer < 0 {
		httputil.BadRequest(w, "layer must be a non-negative integer")
		return
	}
	rec, curves, ok := s.load(w, r)
	if !ok {
		return
	}
	view := FromRecords(curves)
	if len(inLayer(view, layer)) == 0 {
		httputil.NotFound(w, fmt.Sprintf("scan %s has no layer %d", rec.ID, layer))
		return
	}
	var buf bytes.Buffer
	if err := WriteLayerPNG(&buf, view, layer); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteBody(w, "image/png", buf.Bytes())
}
