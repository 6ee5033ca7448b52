// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"errors"
	"fmt"

	"github.com/ManuGH/xrcap/internal/camera"
	"github.com/ManuGH/xrcap/internal/capture"
	"github.com/ManuGH/xrcap/internal/clock"
	"github.com/ManuGH/xrcap/internal/config"
	"github.com/ManuGH/xrcap/internal/depth"
	"github.com/ManuGH/xrcap/internal/gpu"
	"github.com/ManuGH/xrcap/internal/permission"
	"github.com/ManuGH/xrcap/internal/pose"
	"github.com/ManuGH/xrcap/internal/sim"
)

// DeviceSim selects the simulated device rig.
const DeviceSim = "sim"

var (
	// ErrUnsupportedDevice is returned for a device without a rig.
	ErrUnsupportedDevice = errors.New("daemon: unsupported device")
	// ErrNoStreams is returned when the config enables no stream.
	ErrNoStreams = errors.New("daemon: no capture stream enabled")
)

// rig is the set of device collaborators and capture streams for one device.
type rig struct {
	// latch is the device time of every simulated sensor. The tick loop
	// latches it once per tick.
	latch     *clock.Latched
	allocator gpu.Allocator
	streams   []capture.Stream
	pollers   []*permission.Poller
	// wait blocks until asynchronous device work has finished.
	wait func()
}

// buildRig assembles the streams enabled in cfg on top of the device
// collaborators. Only the simulated device is available off-headset.
func buildRig(cfg config.AppConfig, clk clock.Clock) (*rig, error) {
	if cfg.Device != DeviceSim {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDevice, cfg.Device)
	}

	if clk == nil {
		clk = clock.Real{}
	}
	latch := clock.NewLatched(clk.Now())
	g := sim.NewGPU()
	perms := sim.NewPermissions()
	r := &rig{latch: latch, allocator: g}

	if cfg.Depth.Enabled {
		poller := permission.NewPoller(perms, permission.SceneData, cfg.Depth.PermissionPollInterval)
		src := sim.NewDepthSource(sim.NewDeviceClock(latch, sim.DepthEpoch), cfg.Depth.Width, cfg.Depth.Height)
		r.streams = append(r.streams, depth.New(src, g, poller, depth.Config{
			DrainTimeout: cfg.Depth.ReadbackDrainTimeout,
		}))
		r.pollers = append(r.pollers, poller)
	}

	if cfg.Camera.Enabled && len(cfg.Camera.Eyes) > 0 {
		r.pollers = append(r.pollers, permission.NewPoller(perms, permission.Camera, cfg.Depth.PermissionPollInterval))
		camClock := sim.NewDeviceClock(latch, sim.CameraEpoch)
		for _, eye := range cfg.Camera.Eyes {
			e := capture.Eye(eye)
			r.streams = append(r.streams, camera.New(e, sim.NewCamera(e, camClock, cfg.Camera.Width, cfg.Camera.Height)))
		}
	}

	if len(cfg.Pose.Nodes) > 0 {
		tracker := sim.NewTracker(sim.NewDeviceClock(latch, sim.PoseEpoch))
		for _, n := range cfg.Pose.Nodes {
			pc := pose.Config{Node: pose.Node(n.Name), Gated: n.Gated}
			if len(n.Rotation) == 4 {
				tf, err := pose.NewTransform(n.Translation, [4]float64{n.Rotation[0], n.Rotation[1], n.Rotation[2], n.Rotation[3]})
				if err != nil {
					return nil, fmt.Errorf("pose node %s: %w", n.Name, err)
				}
				pc.Transform = &tf
			}
			r.streams = append(r.streams, pose.New(pc, tracker))
		}
	}

	if len(r.streams) == 0 {
		return nil, ErrNoStreams
	}

	r.wait = func() {
		for _, p := range r.pollers {
			p.Wait()
		}
		g.Wait()
	}
	return r, nil
}

// permissionGranted reports the cached state of the poller for kind.
// Kinds without a poller are reported as granted.
func (r *rig) permissionGranted(kind permission.Kind) func() bool {
	for _, p := range r.pollers {
		if p.Kind() == kind {
			return p.Granted
		}
	}
	return func() bool { return true }
}
