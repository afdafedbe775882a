package startup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func newTestStartup(maxAttempts int) *Startup {
	s := NewStartup(noopLogger(), maxAttempts)
	s.unit = time.Millisecond
	return s
}

func TestStartup_OrderAndStop(t *testing.T) {
	var events []string
	dep := func(name string, needs ...string) Dependency {
		return Dependency{
			Name:  name,
			Needs: needs,
			StartFunc: func(context.Context) error {
				events = append(events, "start:"+name)
				return nil
			},
			StopFunc: func(context.Context) error {
				events = append(events, "stop:"+name)
				return nil
			},
		}
	}

	s := newTestStartup(1)
	s.AddDependency(dep("server", "resolver"))
	s.AddDependency(dep("database"))
	s.AddDependency(dep("resolver", "database"))

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, []string{"start:database", "start:resolver", "start:server"}, events)
	assert.Equal(t, StartupStatusStarted, s.Status("server"))

	events = nil
	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, []string{"stop:server", "stop:resolver", "stop:database"}, events)
	assert.Equal(t, StartupStatusStopped, s.Status("database"))
}

func TestStartup_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	s := newTestStartup(3)
	s.AddDependency(Dependency{
		Name: "database",
		StartFunc: func(context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("connection refused")
			}
			return nil
		},
	})

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, 3, calls)
}

func TestStartup_GivesUp(t *testing.T) {
	cause := errors.New("connection refused")
	s := newTestStartup(2)
	s.AddDependency(Dependency{Name: "redis", StartFunc: func(context.Context) error { return cause }})

	err := s.Start(context.Background())
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Equal(t, StartupStatusFailed, s.Status("redis"))
}

func TestStartup_UnknownAndCyclicDependencies(t *testing.T) {
	s := newTestStartup(1)
	s.AddDependency(Dependency{Name: "server", Needs: []string{"missing"}})
	assert.ErrorContains(t, s.Start(context.Background()), "unknown startup dependency 'missing'")

	s = newTestStartup(1)
	s.AddDependency(Dependency{Name: "a", Needs: []string{"b"}})
	s.AddDependency(Dependency{Name: "b", Needs: []string{"a"}})
	assert.ErrorContains(t, s.Start(context.Background()), "cycle")
}

func TestStartup_StopJoinsErrors(t *testing.T) {
	s := newTestStartup(1)
	s.AddDependency(Dependency{Name: "kafka", StopFunc: func(context.Context) error { return errors.New("flush timeout") }})
	s.AddDependency(Dependency{Name: "database"})

	require.NoError(t, s.Start(context.Background()))
	err := s.Stop(context.Background())
	assert.ErrorContains(t, err, "stop kafka: flush timeout")
	assert.Equal(t, StartupStatusStopped, s.Status("database"))
}
