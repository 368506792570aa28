package main

import (
	"errors"
	"net/http"

	"github.com/banshee-data/activealign/internal/config"
	"github.com/banshee-data/activealign/internal/imaging"
	"github.com/banshee-data/activealign/internal/monitoring"
	"github.com/banshee-data/activealign/internal/scan"
	"github.com/banshee-data/activealign/internal/sim"
	"github.com/banshee-data/activealign/internal/stage"
)

// rig is the camera, stage and pattern detector of one station.
type rig struct {
	camera   scan.Camera
	stage    scan.Stage
	ctrl     *stage.Controller
	detector scan.PatternDetector
}

func openRig(cfg *config.Config, o options) (*rig, error) {
	if o.Dev {
		start := cfg.GetStartPos()
		if o.MTF {
			start = o.DevFocus
		}
		st := sim.NewStage(stage.Point3D{Z: start})
		r := &rig{stage: st, ctrl: st.Controller, detector: imaging.BlobDetector{}}
		if o.ReplayDir != "" {
			rep, err := sim.NewReplay(o.ReplayDir, true)
			if err != nil {
				st.Close()
				return nil, err
			}
			r.camera = rep
			r.detector = patternDetector()
		} else {
			cam := sim.NewChartCamera(st, o.DevFocus)
			cam.SetTiltReader(st)
			r.camera = cam
		}
		monitoring.Logf("[stage] dev mode: simulated stage at z=%.4f", start)
		return r, nil
	}

	if o.ReplayDir == "" {
		return nil, errors.New("no camera: use -dev or -replay")
	}
	rep, err := sim.NewReplay(o.ReplayDir, false)
	if err != nil {
		return nil, err
	}
	if o.MTF {
		// The gate only grabs a frame.
		return &rig{camera: rep, detector: patternDetector()}, nil
	}
	port := cfg.GetStagePort()
	if port == "" {
		return nil, errors.New("no stage port: set stage_port or -port")
	}
	ctrl, err := stage.Open(port, stage.PortOptions{
		BaudRate: cfg.GetStageBaudRate(),
		DataBits: cfg.GetStageDataBits(),
		StopBits: cfg.GetStageStopBits(),
		Parity:   cfg.GetStageParity(),
	})
	if err != nil {
		return nil, err
	}
	return &rig{camera: rep, stage: ctrl, ctrl: ctrl, detector: patternDetector()}, nil
}

func (r *rig) attachAdminRoutes(mux *http.ServeMux) {
	if r.ctrl != nil {
		r.ctrl.AttachAdminRoutes(mux)
	}
}

func (r *rig) Close() error {
	if r.ctrl == nil {
		return nil
	}
	return r.ctrl.Close()
}
