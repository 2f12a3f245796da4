package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/robotalks/split.go/pkg/bridge/mqtt"
	"github.com/robotalks/split.go/pkg/bridge/msgs"
	"github.com/robotalks/split.go/pkg/bridge/websocket"
	"github.com/robotalks/split.go/pkg/config"
	"github.com/robotalks/split.go/pkg/framework"
	"github.com/robotalks/split.go/pkg/split/transport"
	"github.com/robotalks/split.go/pkg/split/wired"
)

type daemon struct {
	conf   *config.Config
	hw     *config.Hardware
	queue  *framework.WorkQueue
	hub    *websocket.Hub
	bridge *mqtt.Bridge

	central    *wired.Central
	peripheral *wired.Peripheral
	closer     io.Closer
	reporter   transport.StatusReporter
	setEnabled func(bool) error
}

func newDaemon(conf *config.Config) (*daemon, error) {
	hw, err := conf.OpenHardware()
	if err != nil {
		return nil, err
	}
	d := &daemon{
		conf:  conf,
		hw:    hw,
		queue: framework.NewWorkQueue("wired-" + conf.Role),
		hub:   websocket.NewHub(),
	}
	if conf.MQTTBrokerURL != "" {
		if d.bridge, err = mqtt.NewBridge(conf.MQTTBrokerURL, conf.DeviceID, conf.Role); err != nil {
			hw.Close()
			return nil, fmt.Errorf("create MQTT bridge: %w", err)
		}
	}
	opts := append(hw.Options, wired.WithWorkQueue(d.queue))
	switch conf.Role {
	case config.RoleCentral:
		err = d.initCentral(opts)
	case config.RolePeripheral:
		err = d.initPeripheral(opts)
	}
	if err != nil {
		hw.Close()
		return nil, err
	}
	return d, nil
}

func (d *daemon) initCentral(opts []wired.Option) error {
	handlers := transport.PeripheralEventHandlers{
		transport.HandlePeripheralEventFunc(logEvent),
		d.hub,
	}
	if d.bridge != nil {
		handlers = append(handlers, d.bridge)
	}
	c, err := wired.NewCentral(d.conf.Wired, d.hw.Port, handlers, opts...)
	if err != nil {
		return err
	}
	d.central, d.closer, d.reporter, d.setEnabled = c, c, c, c.SetEnabled
	d.hub.ServeCentral(c)
	if d.bridge != nil {
		d.bridge.ServeCentral(c)
	}
	return nil
}

func (d *daemon) initPeripheral(opts []wired.Option) error {
	handlers := transport.CentralCommandHandlers{
		transport.HandleCentralCommandFunc(logCommand),
		d.hub,
	}
	if d.bridge != nil {
		handlers = append(handlers, d.bridge)
	}
	p, err := wired.NewPeripheral(d.conf.Wired, d.hw.Port, handlers, opts...)
	if err != nil {
		return err
	}
	d.peripheral, d.closer, d.reporter, d.setEnabled = p, p, p, p.SetEnabled
	d.hub.ServePeripheral(p)
	if d.bridge != nil {
		d.bridge.ServePeripheral(p)
	}
	return nil
}

func (d *daemon) start(r *framework.Runner) {
	r.Go(d.queue)
	if d.bridge != nil {
		r.Go(d.bridge)
	}
	if d.conf.ListenAddr != "" {
		r.Go(framework.NamedRun("http", framework.RunFunc(d.serveHTTP)))
	}
	r.Defer(d.hw, d.closer)

	if err := d.reporter.SetStatusCallback(d.statusChanged); err != nil && !errors.Is(err, transport.ErrNotSupported) {
		glog.Warningf("status callback: %v", err)
	}
	if err := d.setEnabled(true); err != nil {
		glog.Errorf("enable transport: %v", err)
	}
	d.statusChanged(d.reporter.Status())
	glog.Infof("split %s %s running on %s (%v)", d.conf.Role, d.conf.DeviceID, d.conf.Port, d.conf.Wired.Mode)
}

func (d *daemon) statusChanged(st transport.Status) {
	glog.Infof("status: available=%v enabled=%v connections=%v", st.Available, st.Enabled, st.Connections)
	if d.bridge != nil {
		d.bridge.UpdateStatus(st)
	}
	d.hub.Broadcast(msgs.NewStatus(d.conf.Role, d.conf.DeviceID, st))
}

func (d *daemon) serveHTTP(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/ws", d.hub.Handler())
	srv := &http.Server{Addr: d.conf.ListenAddr, Handler: mux}
	glog.Infof("listening on %s", d.conf.ListenAddr)
	err := framework.RunWithContextCloser(ctx, srv, srv.ListenAndServe)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func logEvent(_ context.Context, _ transport.CentralTransport, source uint8, ev transport.PeripheralEvent) {
	glog.V(1).Infof("event from %d: %v", source, ev)
}

func logCommand(_ context.Context, _ transport.PeripheralTransport, cmd transport.CentralCommand) {
	glog.V(1).Infof("command: %v", cmd)
}
