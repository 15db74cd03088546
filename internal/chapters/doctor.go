package chapters

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/olliecrow/chapter_generator/internal/store"
)

const doctorCheckKey = "doctorCheck"

type DoctorCheck struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Details string `json:"details"`
}

type DoctorReport struct {
	Checks []DoctorCheck `json:"checks"`
}

type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

type DoctorOptions struct {
	Endpoint    string
	Store       store.Store
	LicenseKey  string
	DialTimeout time.Duration
	Dial        DialFunc
}

// RunDoctor checks the local setup. The webhook is only dialed, never
// posted to, so running it does not consume quota.
func RunDoctor(ctx context.Context, opts DoctorOptions) DoctorReport {
	var checks []DoctorCheck

	endpoint, endpointCheck := checkEndpointConfig(opts.Endpoint)
	checks = append(checks, endpointCheck)
	checks = append(checks, checkStateStore(ctx, opts.Store))
	if endpoint != nil {
		checks = append(checks, checkEndpointReachable(ctx, endpoint, opts))
	} else {
		checks = append(checks, DoctorCheck{
			Name:    "webhook reachable",
			OK:      false,
			Details: "skipped: endpoint is not configured correctly",
		})
	}
	checks = append(checks, checkLicense(opts.LicenseKey))

	return DoctorReport{Checks: checks}
}

func (r DoctorReport) Healthy() bool {
	var storeOK, webhookOK bool
	for _, c := range r.Checks {
		switch c.Name {
		case "state store":
			storeOK = c.OK
		case "webhook reachable":
			webhookOK = c.OK
		}
	}
	return storeOK && webhookOK
}

func checkEndpointConfig(raw string) (*url.URL, DoctorCheck) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		details := fmt.Sprintf("invalid webhook URL %q", raw)
		if err != nil {
			details = fmt.Sprintf("invalid webhook URL %q: %v", raw, err)
		}
		return nil, DoctorCheck{Name: "webhook config", OK: false, Details: details}
	}
	return u, DoctorCheck{Name: "webhook config", OK: true, Details: u.Redacted()}
}

func checkStateStore(ctx context.Context, kv store.Store) DoctorCheck {
	if kv == nil {
		return DoctorCheck{Name: "state store", OK: false, Details: "no store configured"}
	}
	marker := []byte(fmt.Sprintf("%d", time.Now().UnixNano()))
	if err := kv.Set(ctx, doctorCheckKey, marker); err != nil {
		return DoctorCheck{Name: "state store", OK: false, Details: fmt.Sprintf("write check failed: %v", err)}
	}
	defer func() { _ = kv.Delete(ctx, doctorCheckKey) }()

	got, err := kv.Get(ctx, doctorCheckKey)
	if err != nil {
		return DoctorCheck{Name: "state store", OK: false, Details: fmt.Sprintf("read check failed: %v", err)}
	}
	if string(got) != string(marker) {
		return DoctorCheck{Name: "state store", OK: false, Details: "check value mismatch after round trip"}
	}

	details := "read/write ok"
	if fs, ok := kv.(*store.FileStore); ok {
		details = "read/write ok at " + fs.Path()
	}
	return DoctorCheck{Name: "state store", OK: true, Details: details}
}

func checkEndpointReachable(ctx context.Context, u *url.URL, opts DoctorOptions) DoctorCheck {
	timeout := opts.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	dial := opts.Dial
	if dial == nil {
		d := &net.Dialer{}
		dial = d.DialContext
	}

	port := u.Port()
	if port == "" {
		port = "443"
		if u.Scheme == "http" {
			port = "80"
		}
	}
	addr := net.JoinHostPort(u.Hostname(), port)

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	start := time.Now()
	conn, err := dial(dialCtx, "tcp", addr)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s", timeout)
		}
		return DoctorCheck{Name: "webhook reachable", OK: false, Details: fmt.Sprintf("dial %s failed: %v", addr, err)}
	}
	_ = conn.Close()
	return DoctorCheck{
		Name:    "webhook reachable",
		OK:      true,
		Details: fmt.Sprintf("connected to %s in %s", addr, time.Since(start).Round(time.Millisecond)),
	}
}

func checkLicense(key string) DoctorCheck {
	if key == "" {
		return DoctorCheck{Name: "license", OK: true, Details: "no license key; free tier applies"}
	}
	return DoctorCheck{Name: "license", OK: true, Details: "license key present; unlimited generations"}
}
