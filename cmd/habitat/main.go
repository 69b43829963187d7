// Command habitat runs the multi-camera monitoring pipeline against
// simulated camera feeds and records fused observations to sqlite.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/warren-data/habitat.report/internal/config"
	"github.com/warren-data/habitat.report/internal/timeutil"
	"github.com/warren-data/habitat.report/internal/vision"
	"github.com/warren-data/habitat.report/internal/vision/monitor"
	"github.com/warren-data/habitat.report/internal/vision/storage/sqlite"
)

var (
	dbFile     = flag.String("db", "habitat.db", "Path to the sqlite database")
	configPath = flag.String("config", "", "Path to a tuning config JSON file (defaults apply when empty)")
	cameras    = flag.Int("cameras", 3, "Number of simulated cameras")
	cameraFile = flag.String("camera-file", "", "Camera registry JSON (overrides -cameras)")
	animals    = flag.Int("animals", 4, "Number of simulated animals")
	fps        = flag.Float64("fps", 15, "Simulated frame rate per camera")
	jitterMs   = flag.Int("jitter-ms", 20, "Max per-frame capture jitter in milliseconds")
	duration   = flag.Duration("duration", 30*time.Second, "How long to run the simulation")
	seed       = flag.Int64("seed", 1, "Simulation random seed")
	plotDir    = flag.String("plots", "", "Directory for trajectory plots (disabled when empty)")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	tuning := config.EmptyTuningConfig()
	if *configPath != "" {
		loaded, err := config.LoadTuningConfig(*configPath)
		if err != nil {
			return err
		}
		tuning = loaded
	}

	store, err := sqlite.Open(*dbFile)
	if err != nil {
		return err
	}
	defer store.Close()

	cameraIDs, err := resolveCameras()
	if err != nil {
		return err
	}

	world := newSimWorld(*animals, *seed, time.Now())
	pipeline, err := vision.NewPipeline(pipelineConfig(tuning), world, nil, nil, timeutil.RealClock{})
	if err != nil {
		return err
	}
	for _, id := range cameraIDs {
		pipeline.RegisterCamera(id)
	}

	runID, err := store.BeginRun(time.Now(), cameraIDs)
	if err != nil {
		return err
	}
	log.Printf("run %s: %d cameras, %d animals, %.0f fps for %s", runID, len(cameraIDs), *animals, *fps, *duration)

	var plotter *monitor.TrackPlotter
	if *plotDir != "" {
		plotter = monitor.NewTrackPlotter()
		if err := plotter.Start(*plotDir); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	for i, id := range cameraIDs {
		wg.Add(1)
		go func(cameraID string, camSeed int64) {
			defer wg.Done()
			runCameraFeed(ctx, pipeline.Synchronizer(), cameraID, camSeed)
		}(id, *seed+int64(i)+1)
	}

	var step int64
	err = pipeline.Run(ctx, func(objects []vision.FusedObject) {
		if len(objects) == 0 {
			return
		}
		step++
		if err := store.RecordStep(runID, step, objects); err != nil {
			log.Printf("record step %d: %v", step, err)
		}
		if plotter != nil {
			plotter.Sample(objects)
		}
	})
	if err != nil && ctx.Err() == nil {
		return err
	}

	wg.Wait()
	return finishRun(store, runID, pipeline, plotter)
}

// resolveCameras returns the camera IDs to simulate, from the registry file
// when one is given.
func resolveCameras() ([]string, error) {
	if *cameraFile != "" {
		registry, err := vision.LoadCameras(*cameraFile)
		if err != nil {
			return nil, err
		}
		ids := vision.EnabledCameraIDs(registry)
		if len(ids) == 0 {
			return nil, fmt.Errorf("no enabled cameras in %s", *cameraFile)
		}
		return ids, nil
	}

	ids := make([]string, *cameras)
	for i := range ids {
		ids[i] = fmt.Sprintf("cam-%02d", i)
	}
	return ids, nil
}

// finishRun persists the registry and counters, then renders plots.
func finishRun(store *sqlite.Store, runID string, pipeline *vision.Pipeline, plotter *monitor.TrackPlotter) error {
	if err := store.SaveRegistry(runID, pipeline.Registry().Snapshot()); err != nil {
		return err
	}
	snap := pipeline.Stats()
	if err := store.RecordStats(runID, snap); err != nil {
		return err
	}
	if err := store.EndRun(runID, time.Now()); err != nil {
		return err
	}

	log.Printf("run %s finished: steps=%d identities=%d reid_matches=%d", runID,
		snap.StepsProcessed, snap.IdentitiesCreated, snap.ReIDMatches)
	log.Printf("frames: buffered=%d dropped=%d purged=%d sync_failures=%d avg_sync_error=%.1fms",
		snap.FramesBuffered, snap.FramesDropped, snap.FramesPurged, snap.SyncFailures, snap.AvgSyncErrorMs)

	if plotter != nil {
		plotter.Stop()
		files, err := plotter.GeneratePlots()
		if err != nil {
			return err
		}
		log.Printf("wrote %d plots", len(files))
	}
	return nil
}

// runCameraFeed pushes timestamped frames at the configured rate with
// per-frame capture jitter until ctx is cancelled. The payload stays nil;
// the simulated detector works from timestamps alone.
func runCameraFeed(ctx context.Context, sink *vision.Synchronizer, cameraID string, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	interval := time.Duration(float64(time.Second) / *fps)

	for {
		jitter := time.Duration(rng.Int63n(int64(*jitterMs)+1)) * time.Millisecond
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval + jitter):
		}
		sink.Push(cameraID, nil, time.Now())
	}
}

// pipelineConfig maps the tuning file onto the pipeline's config structs.
func pipelineConfig(tuning *config.TuningConfig) vision.PipelineConfig {
	return vision.PipelineConfig{
		Sync: vision.SyncConfig{
			BufferSize:   tuning.GetSyncBufferSize(),
			Tolerance:    tuning.GetSyncTolerance(),
			MaxFrameAge:  tuning.GetMaxFrameAge(),
			PollInterval: tuning.GetPollInterval(),
		},
		Associator: vision.AssociatorConfig{
			IoUThreshold:     float32(tuning.GetIoUThreshold()),
			MinHits:          tuning.GetMinHits(),
			MaxAge:           tuning.GetMaxTrackAge(),
			TrajectoryLength: tuning.GetTrajectoryLength(),
		},
		Resolver: vision.ResolverConfig{
			ReIDThreshold: tuning.GetReIDThreshold(),
			PrototypeKeep: tuning.GetPrototypeKeep(),
		},
		StepWaitTimeout: tuning.GetStepWaitTimeout(),
		MinCameras:      tuning.GetMinCameras(),
	}
}
