package setup

import (
	"context"
	"fmt"
	"net/http"

	ainform "github.com/airenas/async-api/pkg/inform"
	"github.com/airenas/async-api/pkg/miniofs"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/tflow/internal/pkg/api"
	"github.com/airenas/tflow/internal/pkg/archive"
	"github.com/airenas/tflow/internal/pkg/batch"
	"github.com/airenas/tflow/internal/pkg/consul"
	"github.com/airenas/tflow/internal/pkg/inform"
	"github.com/airenas/tflow/internal/pkg/logchannel"
	"github.com/airenas/tflow/internal/pkg/manifest"
	"github.com/airenas/tflow/internal/pkg/monitor"
	"github.com/airenas/tflow/internal/pkg/statusservice"
	"github.com/airenas/tflow/internal/pkg/task"
	"github.com/airenas/tflow/internal/pkg/transcriber"
	"github.com/airenas/tflow/internal/pkg/validator"
	capi "github.com/hashicorp/consul/api"
	"github.com/spf13/viper"
)

// App keeps wired components of one job surface
type App struct {
	Monitor  *monitor.Monitor
	Task     *task.Task
	Batch    *batch.Coordinator
	Client   *transcriber.Client
	Policy   validator.Policy
	Defaults manifest.Options

	statusPort int
}

// New wires app from config
func New(ctx context.Context, c *viper.Viper) (*App, error) {
	res := &App{statusPort: c.GetInt("status.port")}
	var err error
	if res.Policy, err = Policy(c); err != nil {
		return nil, err
	}
	if res.Defaults, err = Defaults(c); err != nil {
		return nil, err
	}
	base, err := serverURL(ctx, c)
	if err != nil {
		return nil, err
	}
	urls := URLs(c, base)
	token := c.GetString("server.token")
	if res.Client, err = transcriber.NewClient(urls.Upload, urls.Clear, token); err != nil {
		return nil, fmt.Errorf("can't init transcriber client: %w", err)
	}
	res.Client.WithUploadTimeout(c.GetDuration("upload.timeout"))

	dialer, err := logchannel.NewDialer(urls.Logs)
	if err != nil {
		return nil, fmt.Errorf("can't init logs dialer: %w", err)
	}
	if dialer.DialTimeout, err = duration(c, "channel.dialTimeout"); err != nil {
		return nil, err
	}
	if dialer.KeepAlive, err = duration(c, "channel.keepAlive"); err != nil {
		return nil, err
	}
	if token != "" {
		dialer.Header = http.Header{}
		dialer.Header.Set("Authorization", "Bearer "+token)
	}

	capacity := c.GetInt("logs.capacity")
	if capacity < 1 {
		return nil, fmt.Errorf("wrong logs.capacity %d", capacity)
	}
	res.Monitor = monitor.New(capacity, res.Client)

	res.Task = &task.Task{Uploader: res.Client, Channels: dialer, Monitor: res.Monitor,
		CloseGrace: c.GetDuration("channel.closeGrace"), ArmDelay: c.GetDuration("channel.armDelay")}
	if err := res.Task.Validate(); err != nil {
		return nil, err
	}
	if res.Task.Archiver, err = initArchive(ctx, c); err != nil {
		return nil, err
	}

	res.Batch = &batch.Coordinator{Runner: res.Task, Monitor: res.Monitor}
	n, err := initInform(c)
	if err != nil {
		return nil, err
	}
	if n != nil {
		res.Batch.OnFinish = append(res.Batch.OnFinish, n.OnFinish)
	}
	return res, nil
}

// Requests makes validated upload requests from files or a manifest
func (a *App) Requests(files []string, manifestFile string) ([]*api.UploadRequest, *validator.Result, error) {
	var entries []manifest.Entry
	if manifestFile != "" {
		m, err := manifest.Load(manifestFile)
		if err != nil {
			return nil, nil, err
		}
		if entries, err = m.Entries(a.Defaults); err != nil {
			return nil, nil, err
		}
	}
	for _, f := range files {
		entries = append(entries, manifest.Entry{Path: f, Options: a.Defaults})
	}
	if len(entries) == 0 {
		return nil, nil, api.ErrNoFile
	}
	reqs, vr := manifest.Build(entries, a.Policy)
	return reqs, vr, nil
}

// Process runs one request as a single task and more as a batch
func (a *App) Process(ctx context.Context, reqs []*api.UploadRequest) (*batch.Summary, error) {
	if len(reqs) == 1 {
		a.Monitor.Prepare()
		ID, res, err := a.Task.Execute(ctx, reqs[0])
		it := batch.ItemResult{Name: reqs[0].Name(), RequestID: ID, Result: res, Status: batch.Success}
		s := &batch.Summary{Total: 1, Succeeded: 1, Current: res}
		if err != nil {
			it.Status, it.Error = batch.Failed, err.Error()
			s.Succeeded, s.Failed, s.Current = 0, 1, nil
		}
		s.Items = []batch.ItemResult{it}
		return s, err
	}
	return a.Batch.Run(ctx, reqs)
}

// StartStatus serves the local status API if status.port is set.
// It blocks until the server stops
func (a *App) StartStatus() error {
	if a.statusPort <= 0 {
		goapp.Log.Info().Msg("no status.port - skip status service")
		return nil
	}
	keeper := statusservice.NewWSConnKeeper()
	pub, err := statusservice.NewPublisher(keeper)
	if err != nil {
		return err
	}
	a.Monitor.Subscribe(pub)
	a.Batch.Subscribe(pub.OnItems)
	return statusservice.StartWebServer(&statusservice.Data{Port: a.statusPort, Monitor: a.Monitor,
		Batch: a.Batch, WSHandler: keeper})
}

func serverURL(ctx context.Context, c *viper.Viper) (string, error) {
	srv := c.GetString("server.consul.service")
	if srv == "" {
		return c.GetString("server.url"), nil
	}
	r, err := consul.NewResolver(capi.DefaultConfig(), srv)
	if err != nil {
		return "", fmt.Errorf("can't init consul: %w", err)
	}
	return r.Resolve(ctx)
}

func initArchive(ctx context.Context, c *viper.Viper) (task.Archiver, error) {
	bucket := c.GetString("archive.bucket")
	if bucket == "" {
		goapp.Log.Info().Msg("no archive.bucket - skip archive")
		return nil, nil
	}
	filer, err := miniofs.NewFiler(ctx, miniofs.Options{Bucket: bucket, URL: c.GetString("archive.url"),
		User: c.GetString("archive.user"), Key: c.GetString("archive.key")})
	if err != nil {
		return nil, fmt.Errorf("can't init file saver: %w", err)
	}
	return archive.NewArchiver(filer)
}

func initInform(c *viper.Viper) (*inform.Notifier, error) {
	to := c.GetString("inform.email")
	if to == "" {
		goapp.Log.Info().Msg("no inform.email - skip inform")
		return nil, nil
	}
	var sender inform.Sender
	var err error
	if c.GetString("smtp.fakeUrl") == "" {
		goapp.Log.Info().Str("sender", "real").Msg("smtp")
		sender, err = ainform.NewSimpleEmailSender(c)
	} else {
		goapp.Log.Info().Str("sender", "fake").Msg("smtp")
		sender, err = inform.NewFakeEmailSender(c)
	}
	if err != nil {
		return nil, fmt.Errorf("can't init email sender: %w", err)
	}
	return inform.NewNotifier(sender, to, c.GetString("smtp.from"))
}
