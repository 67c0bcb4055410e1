// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/devblok/prism/backend"
	"github.com/devblok/prism/core"
	"github.com/devblok/prism/gfx"
	"github.com/devblok/prism/shader"
	"github.com/devblok/prism/utility/kar"
	log "github.com/sirupsen/logrus"
	"github.com/veandco/go-sdl2/sdl"
	"golang.org/x/sync/errgroup"
)

func init() {
	runtime.LockOSThread()
}

// Profiling
var (
	cpuProfile   = flag.String("cpuprof", "", "Profile CPU usage to file")
	memProfile   = flag.String("memprof", "", "Profile memory usage into a file")
	traceProfile = flag.String("trace", "", "Trace output for profiling")
)

var (
	envFiles    = flag.String("env", "", "Comma separated .env files to load")
	backendName = flag.String("backend", "", "Backend override: vulkan, opengl or headless")
	shaderName  = flag.String("shader", "triangle", "Shader pair drawn by the demo")
	verbose     = flag.Bool("v", false, "Debug logging")
)

func main() {
	flag.Parse()
	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			log.Fatal(err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal(err)
		}
		defer pprof.StopCPUProfile()
	}

	if *traceProfile != "" {
		f, err := os.Create(*traceProfile)
		if err != nil {
			log.Fatal(err)
		}
		if err := trace.Start(f); err != nil {
			log.Fatal(err)
		}
		defer trace.Stop()
	}

	if err := run(); err != nil {
		log.WithError(err).Error("prism exited")
		os.Exit(1)
	}

	if *memProfile != "" {
		f, err := os.Create(*memProfile)
		if err != nil {
			log.Fatal(err)
		}
		if err := pprof.WriteHeapProfile(f); err != nil {
			log.Fatal(err)
		}
	}
}

func configuration() (core.Configuration, error) {
	var files []string
	if *envFiles != "" {
		files = strings.Split(*envFiles, ",")
	}
	cfg, err := core.LoadConfiguration(files...)
	if err != nil {
		return cfg, err
	}
	if *backendName != "" {
		if cfg.Renderer.Backend, err = gfx.ParseKind(*backendName); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

// loadShader looks the demo shader up in the archive when one is
// configured and in the shader directory otherwise. A missing shader
// leaves the demo with the background pass only.
func loadShader(cfg core.RendererConfiguration) (*gfx.ShaderSource, error) {
	var sources []gfx.ShaderSource
	if cfg.ShaderArchive != "" {
		ar, err := kar.OpenFile(cfg.ShaderArchive)
		if err != nil {
			return nil, err
		}
		defer ar.Close()
		if sources, err = shader.FromArchive(ar); err != nil {
			return nil, err
		}
	} else {
		var err error
		if sources, err = shader.FromDirectory(cfg.ShaderDirectory); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, nil
			}
			return nil, err
		}
	}

	source, err := shader.Find(sources, *shaderName)
	if errors.Is(err, shader.ErrNotFound) {
		return nil, nil
	}
	return source, err
}

func run() error {
	cfg, err := configuration()
	if err != nil {
		return errors.Wrap(err, "configuration")
	}
	logger := log.WithField("app", "prism")

	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		return errors.Wrap(err, "sdl.Init()")
	}
	defer sdl.Quit()

	kind := cfg.Renderer.Backend
	win, err := newWindow("Prism", kind, cfg.Renderer.ScreenWidth, cfg.Renderer.ScreenHeight)
	if err != nil {
		return err
	}
	defer win.Destroy(kind)

	b, err := backend.Open(kind, win, backend.FromConfiguration(cfg.Renderer), logger)
	if err != nil {
		return err
	}
	renderer := core.NewRenderer(b, cfg.Renderer, logger)
	if err := renderer.Initialize(); err != nil {
		return err
	}
	defer renderer.Cleanup()

	source, err := loadShader(cfg.Renderer)
	if err != nil {
		return err
	}
	if source == nil {
		logger.WithField("shader", *shaderName).Warn("shader not found, drawing the background only")
	}
	scn, err := newScene(renderer, source)
	if err != nil {
		return err
	}
	defer scn.release()

	timeService := core.NewTime(cfg.Time)
	defer timeService.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g.Go(func() error {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				stats := renderer.Stats()
				logger.WithFields(log.Fields{
					"frames":  stats.Frames,
					"frame":   stats.FrameTime,
					"average": stats.Average,
					"cgo":     runtime.NumCgoCall(),
				}).Debug("frame statistics")
			}
		}
	})

	// Windowing and the OpenGL context live on the main thread, so
	// events and frames share one loop.
	loopErr := loop(ctx, cancel, timeService, renderer, scn, logger)
	cancel()
	return errors.CombineErrors(loopErr, g.Wait())
}

func loop(ctx context.Context, cancel context.CancelFunc, timeService *core.Time, renderer *core.Renderer, scn *scene, logger log.FieldLogger) error {
	width, height := renderer.Backend().Extent().Width, renderer.Backend().Extent().Height
	for {
		select {
		case <-ctx.Done():
			logger.Info("event loop exited")
			return renderer.WaitIdle()
		case <-timeService.EventTicker().C:
			for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
				switch et := event.(type) {
				case *sdl.KeyboardEvent:
					if et.Keysym.Sym == sdl.K_ESCAPE {
						cancel()
					}
				case *sdl.QuitEvent:
					cancel()
				case *sdl.WindowEvent:
					if et.Event == sdl.WINDOWEVENT_SIZE_CHANGED {
						width, height = uint32(et.Data1), uint32(et.Data2)
						if err := renderer.Resize(width, height); err != nil {
							return err
						}
					}
				}
			}
		case <-timeService.FpsTicker().C:
			if width == 0 || height == 0 {
				continue
			}
			index, err := renderer.Prepare()
			if err != nil {
				return err
			}
			if err := scn.update(index, width, height); err != nil {
				return err
			}
			if err := renderer.Display(); err != nil {
				if gfx.IsFatal(err) {
					return err
				}
				logger.WithError(err).Warn("frame drawn with errors")
			}
		}
	}
}
