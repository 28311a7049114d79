package main

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// gpioWatchSlice bounds how long a pin watcher blocks in WaitForEdge, so Close
// returns promptly.
const gpioWatchSlice = 250 * time.Millisecond

// gpioLines is a LineSource over periph.io GPIO pins with edge detection.
// Each pin gets a watcher goroutine that forwards edges into one channel.
type gpioLines struct {
	pins  [lineCount]gpio.PinIO
	edges chan Edge

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// openGPIOLines initializes the periph host drivers and configures the three
// knob pins as pulled-up inputs. A and B report both edges, the button only
// falling edges.
func openGPIOLines(cfg GPIOInputConfig) (*gpioLines, error) {
	if _, err := host.Init(); err != nil {
		return nil, &HardwareError{Op: "init", Err: err}
	}

	g := &gpioLines{
		edges: make(chan Edge, 64),
		stop:  make(chan struct{}),
	}

	names := [lineCount]string{
		LineA:      cfg.LineA,
		LineB:      cfg.LineB,
		LineButton: cfg.Button,
	}
	edgeModes := [lineCount]gpio.Edge{
		LineA:      gpio.BothEdges,
		LineB:      gpio.BothEdges,
		LineButton: gpio.FallingEdge,
	}

	for l := Line(0); l < lineCount; l++ {
		p := gpioreg.ByName(names[l])
		if p == nil {
			g.haltPins()
			return nil, &HardwareError{Op: "open", Line: names[l], Err: errors.New("no such pin")}
		}
		if err := p.In(gpio.PullUp, edgeModes[l]); err != nil {
			g.haltPins()
			return nil, &HardwareError{Op: "configure", Line: names[l], Err: err}
		}
		g.pins[l] = p
	}

	for l := Line(0); l < lineCount; l++ {
		g.wg.Add(1)
		go g.watch(l)
	}
	return g, nil
}

func (g *gpioLines) watch(l Line) {
	defer g.wg.Done()
	pin := g.pins[l]
	for {
		select {
		case <-g.stop:
			return
		default:
		}
		if !pin.WaitForEdge(gpioWatchSlice) {
			continue
		}
		e := Edge{Line: l, Level: Level(pin.Read() == gpio.High)}
		select {
		case g.edges <- e:
		case <-g.stop:
			return
		}
	}
}

func (g *gpioLines) Level(l Line) (Level, error) {
	if l >= lineCount || g.pins[l] == nil {
		return Low, &HardwareError{Op: "read", Line: l.String(), Err: fmt.Errorf("line not configured")}
	}
	return Level(g.pins[l].Read() == gpio.High), nil
}

func (g *gpioLines) WaitEdge(timeout time.Duration) (Edge, bool, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case e := <-g.edges:
		return e, true, nil
	case <-t.C:
		return Edge{}, false, nil
	}
}

// Close stops the watchers and releases the pins.
func (g *gpioLines) Close() error {
	var err error
	g.once.Do(func() {
		close(g.stop)
		g.wg.Wait()
		err = g.haltPins()
	})
	return err
}

func (g *gpioLines) haltPins() error {
	var errs []error
	for _, p := range g.pins {
		if p == nil {
			continue
		}
		if err := p.Halt(); err != nil {
			errs = append(errs, fmt.Errorf("halt %s: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}
