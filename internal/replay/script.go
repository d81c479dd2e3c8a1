package replay

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vincentbai/behaviortrace/internal/page"
)

type StepType string

const (
	StepPointerMove StepType = "pointer_move"
	StepClick       StepType = "click"
	StepHoverEnter  StepType = "hover_enter"
	StepHoverExit   StepType = "hover_exit"
	StepScroll      StepType = "scroll"
	StepResize      StepType = "resize"
	StepVisibility  StepType = "visibility"
	StepWait        StepType = "wait"
	StepUnload      StepType = "unload"
)

// Script describes a page and a timeline of signals to play against it.
type Script struct {
	URL      string `yaml:"url"`
	Title    string `yaml:"title"` // overrides <title> when set
	Referrer string `yaml:"referrer"`
	// Start is the simulated wall time of page load; zero means now.
	Start    time.Time            `yaml:"start"`
	Viewport Size                 `yaml:"viewport"`
	Height   float64              `yaml:"height"`
	Layout   map[string]page.Rect `yaml:"layout"`
	Steps    []Step               `yaml:"steps"`
}

type Size struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
}

// Step happens After the previous one. X and Y are pointer coordinates for
// pointer steps and the scroll offset for scroll; Width and Height are used
// by resize.
type Step struct {
	After  time.Duration `yaml:"after"`
	Type   StepType      `yaml:"type"`
	X      float64       `yaml:"x"`
	Y      float64       `yaml:"y"`
	Target string        `yaml:"target"`
	Hidden bool          `yaml:"hidden"`
	Width  float64       `yaml:"width"`
	Height float64       `yaml:"height"`
}

func LoadScript(path string) (*Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open script: %w", err)
	}
	defer f.Close()
	return ParseScript(f)
}

func ParseScript(r io.Reader) (*Script, error) {
	var s Script
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	s.applyDefaults()
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Script) applyDefaults() {
	if s.URL == "" {
		s.URL = "about:blank"
	}
	if s.Viewport.Width == 0 {
		s.Viewport.Width = 1280
	}
	if s.Viewport.Height == 0 {
		s.Viewport.Height = 800
	}
}

func (s *Script) validate() error {
	for selector := range s.Layout {
		if _, err := page.ParseSelector(selector); err != nil {
			return fmt.Errorf("layout: %w", err)
		}
	}
	for i, step := range s.Steps {
		if step.After < 0 {
			return fmt.Errorf("step %d: negative delay", i)
		}
		switch step.Type {
		case StepHoverEnter, StepHoverExit:
			if step.Target == "" {
				return fmt.Errorf("step %d: %s needs a target", i, step.Type)
			}
		case StepResize:
			if step.Width <= 0 || step.Height <= 0 {
				return fmt.Errorf("step %d: resize needs a positive width and height", i)
			}
		case StepPointerMove, StepClick, StepScroll, StepVisibility, StepWait, StepUnload:
		default:
			return fmt.Errorf("step %d: unknown type %q", i, step.Type)
		}
		if step.Target != "" {
			if _, err := page.ParseSelector(step.Target); err != nil {
				return fmt.Errorf("step %d: %w", i, err)
			}
		}
	}
	return nil
}
