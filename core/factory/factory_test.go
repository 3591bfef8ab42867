package factory

import (
	"strings"
	"testing"
	"time"
)

type sink struct {
	URL     string
	Timeout time.Duration
}

func newSinkRegistry(t *testing.T) *Registry[*sink] {
	t.Helper()
	reg := NewRegistry[*sink]("test sink")
	reg.MustRegister("HTTP", func(conf map[string]any) (*sink, error) {
		var c struct {
			URL     string        `json:"url"`
			Timeout time.Duration `json:"timeout"`
		}
		if err := Decode(conf, &c); err != nil {
			return nil, err
		}
		return &sink{URL: c.URL, Timeout: c.Timeout}, nil
	})
	return reg
}

func TestBuild(t *testing.T) {
	reg := newSinkRegistry(t)
	s, err := reg.Build(Spec{Type: "http", Conf: map[string]any{"url": "http://x", "timeout": "2s"}})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if s.URL != "http://x" || s.Timeout != 2*time.Second {
		t.Fatalf("unexpected %+v", s)
	}
}

func TestBuildErrors(t *testing.T) {
	reg := newSinkRegistry(t)
	_, err := reg.Build(Spec{Type: "udp"})
	if err == nil || !strings.Contains(err.Error(), "known: http") {
		t.Fatalf("expected unknown type listing known names, got %v", err)
	}
	if _, err := reg.Build(Spec{Type: "http", Conf: map[string]any{"uri": "typo"}}); err == nil {
		t.Fatal("expected unused key error")
	}
	if err := reg.Register("http", func(map[string]any) (*sink, error) { return nil, nil }); err == nil {
		t.Fatal("expected duplicate error")
	}
	if err := reg.Register("other", nil); err == nil {
		t.Fatal("expected nil builder error")
	}
}

func TestMustRegisterPanicsOnDuplicate(t *testing.T) {
	reg := newSinkRegistry(t)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	reg.MustRegister("http", func(map[string]any) (*sink, error) { return nil, nil })
}
