package state

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"cssdata/config"
	"cssdata/dataurl"
)

func TestContextWithEnv(t *testing.T) {
	env := EnvFromContext(ContextWithEnv(context.Background()))
	if env == nil {
		t.Fatal("EnvFromContext() returned nil")
	}
	if env.start.IsZero() {
		t.Error("Environment start time not set")
	}
}

func TestEnvFromContext_Missing(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic when env not in context")
		}
	}()
	EnvFromContext(context.Background())
}

func TestLocalEnv_Uptime(t *testing.T) {
	env := &LocalEnv{start: time.Now()}
	time.Sleep(10 * time.Millisecond)
	if uptime := env.Uptime(); uptime < 10*time.Millisecond {
		t.Errorf("Uptime() = %v, expected at least 10ms", uptime)
	}
}

func TestLocalEnv_StdLog(t *testing.T) {
	env := &LocalEnv{
		Log: zaptest.NewLogger(t, zaptest.WrapOptions(zap.AddCaller(), zap.AddCallerSkip(1))),
	}
	for i := range 3 {
		env.RedirectStdLog()
		if env.restoreStdLog == nil {
			t.Errorf("Iteration %d: restoreStdLog not set", i)
		}
		env.RestoreStdLog()
	}

	// nil logger must be tolerated
	env = &LocalEnv{}
	env.RedirectStdLog()
	if env.restoreStdLog != nil {
		t.Error("Expected restoreStdLog to remain nil")
	}
	env.RestoreStdLog()
}

func TestLocalEnv_NewInliner(t *testing.T) {
	cfg, err := config.LoadConfiguration("")
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}
	cfg.Inlining.SizeLimit = 4

	env := &LocalEnv{Cfg: cfg, Log: zaptest.NewLogger(t)}
	fetch := dataurl.FetcherFunc(func(context.Context, string) ([]byte, error) {
		return []byte("12345"), nil
	})

	res, err := env.NewInliner().Process(context.Background(), "a{background:url(a.png)}", fetch)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(res.Outcomes) != 1 || res.Outcomes[0].Reason != dataurl.ReasonTooLarge {
		t.Errorf("configured size limit was not applied: %+v", res.Outcomes)
	}

	// no configuration - defaults
	if (&LocalEnv{}).NewInliner() == nil {
		t.Error("NewInliner() returned nil")
	}
}
