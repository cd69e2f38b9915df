package tool

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/user"
	"runtime"
	"strings"
	"time"
)

const (
	defaultExternalIPURL = "https://api.ipify.org"
	externalIPTimeout    = 3 * time.Second
	unavailable          = "Unavailable"
)

// SystemContext collects the environment description handed to the model at
// the start of every flow.
type SystemContext struct {
	ExternalIPURL string // empty disables the lookup
	Client        *http.Client
	Now           func() time.Time
}

func NewSystemContext() *SystemContext {
	return &SystemContext{
		ExternalIPURL: defaultExternalIPURL,
		Client:        &http.Client{Timeout: externalIPTimeout},
		Now:           time.Now,
	}
}

// Describe renders the environment as markdown key/value lines.
func (s *SystemContext) Describe(ctx context.Context) string {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = unavailable
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}

	osName := runtime.GOOS
	if ver := getOSVersion(ctx); ver != "" {
		osName = fmt.Sprintf("%s %s", runtime.GOOS, ver)
	}

	lines := []string{
		fmt.Sprintf("**Operating System:** %s", osName),
		fmt.Sprintf("**OS Details:** %s", osDetails(ctx)),
		fmt.Sprintf("**Local Network IP:** %s", localIP()),
		fmt.Sprintf("**External IP:** %s", s.externalIP(ctx)),
		fmt.Sprintf("**Username:** %s", username()),
		fmt.Sprintf("**Current Working Directory:** %s", cwd),
		fmt.Sprintf("**Current Date and Time:** %s", now().Format("2006-01-02 15:04:05")),
	}
	return strings.Join(lines, "\n")
}

func (s *SystemContext) externalIP(ctx context.Context) string {
	if s.ExternalIPURL == "" {
		return unavailable
	}
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: externalIPTimeout}
	}
	ctx, cancel := context.WithTimeout(ctx, externalIPTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.ExternalIPURL, nil)
	if err != nil {
		return unavailable
	}
	resp, err := client.Do(req)
	if err != nil {
		return unavailable
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return unavailable
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return unavailable
	}
	ip := strings.TrimSpace(string(body))
	if net.ParseIP(ip) == nil {
		return unavailable
	}
	return ip
}

// localIP returns the address of the interface used for outbound traffic.
// Dialing UDP sends no packets.
func localIP() string {
	conn, err := net.Dial("udp", "192.0.2.1:80")
	if err == nil {
		defer conn.Close()
		if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
			return addr.IP.String()
		}
	}
	host, err := os.Hostname()
	if err != nil {
		return unavailable
	}
	addrs, err := net.LookupHost(host)
	if err != nil || len(addrs) == 0 {
		return unavailable
	}
	return addrs[0]
}

func username() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return unavailable
}

func osDetails(ctx context.Context) string {
	hostname, _ := os.Hostname()
	details := []string{
		"system=" + runtime.GOOS,
		"node=" + hostname,
		"machine=" + runtime.GOARCH,
	}
	if runtime.GOOS != "windows" {
		if rel := runCmd(ctx, "uname", "-r"); rel != "" {
			details = append(details, "release="+rel)
		}
		if ver := runCmd(ctx, "uname", "-v"); ver != "" {
			details = append(details, "version="+ver)
		}
	}
	return strings.Join(details, ", ")
}

func runCmd(ctx context.Context, name string, args ...string) string {
	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = nil
	if err := cmd.Run(); err != nil {
		return ""
	}
	return strings.TrimSpace(out.String())
}

func getOSVersion(ctx context.Context) string {
	switch runtime.GOOS {
	case "darwin":
		ver := runCmd(ctx, "sw_vers", "-productVersion")
		name := runCmd(ctx, "sw_vers", "-productName")
		if name != "" && ver != "" {
			return fmt.Sprintf("%s %s", name, ver)
		}
		return ver
	case "linux":
		data, err := os.ReadFile("/etc/os-release")
		if err == nil {
			for _, line := range strings.Split(string(data), "\n") {
				if strings.HasPrefix(line, "PRETTY_NAME=") {
					return strings.Trim(strings.TrimPrefix(line, "PRETTY_NAME="), "\"")
				}
			}
		}
		return runCmd(ctx, "uname", "-r")
	}
	return ""
}

// LookPathAny returns the first executable from names found on PATH.
func LookPathAny(names ...string) (string, bool) {
	for _, n := range names {
		if p, err := exec.LookPath(n); err == nil {
			return p, true
		}
	}
	return "", false
}
