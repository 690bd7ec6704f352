/*
The testbed renders a triangle and runs a small particle simulation to
exercise the device. Without a window it can show live stats in the terminal.
*/
package main

import (
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spaghettifunk/anima-gal/engine"
	"github.com/spaghettifunk/anima-gal/engine/config"
	"github.com/spaghettifunk/anima-gal/engine/core"
	"github.com/spaghettifunk/anima-gal/testbed"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML device config")
	backend := flag.String("backend", "", "override the backend (vulkan or null)")
	headless := flag.Bool("headless", false, "run without a window or swap chain")
	frames := flag.Uint64("frames", 0, "stop after this many frames, 0 runs until closed")
	tui := flag.Bool("tui", false, "show live stats in the terminal (headless only)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			os.Exit(1)
		}
	}
	if *backend != "" {
		cfg.Backend = *backend
	}

	tb := testbed.NewTestGame(&engine.ApplicationConfig{
		StartPosX: 100,
		StartPosY: 100,
		Name:      cfg.ApplicationName,
		Headless:  *headless,
		MaxFrames: *frames,
	})

	e, err := engine.New(tb.Game, cfg)
	if err != nil {
		os.Exit(1)
	}
	if err := e.Initialize(); err != nil {
		_ = e.Shutdown()
		os.Exit(1)
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	go func() {
		<-sigCh
		e.Stop()
	}()

	if *tui && *headless {
		err = runWithStats(e)
	} else {
		err = e.Run()
	}
	if serr := e.Shutdown(); serr != nil {
		err = errors.Join(err, serr)
	}
	if err != nil {
		core.LogError("%s", err)
		os.Exit(1)
	}
}

// runWithStats runs the loop on its own goroutine while the terminal view
// polls the engine. Only valid without a window.
func runWithStats(e *engine.Engine) error {
	core.SetLogOutput(os.Stderr)
	p := tea.NewProgram(testbed.NewStatsModel(e, e.Stop))

	done := make(chan error, 1)
	go func() {
		err := e.Run()
		p.Send(testbed.StatsDoneMsg{Err: err})
		done <- err
	}()

	if _, err := p.Run(); err != nil {
		e.Stop()
		<-done
		return err
	}
	e.Stop()
	return <-done
}
