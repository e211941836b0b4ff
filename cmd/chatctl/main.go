package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/deskbase/chatd/internal/config"
	"github.com/deskbase/chatd/internal/profile"
	"github.com/spf13/cobra"
)

var (
	flagProfile string
	flagAddr    string
)

var rootCmd = &cobra.Command{
	Use:           "chatctl",
	Short:         "Control a running chatd daemon",
	Long:          "chatctl talks to the HTTP control API of a chatd daemon over the loopback interface.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagProfile, "profile", "", "profile name (defaults to the configured default)")
	rootCmd.PersistentFlags().StringVar(&flagAddr, "addr", "", "daemon address (overrides the profile config)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// daemonAddr resolves the daemon listen address: --addr flag first, then the
// profile's config file, then the built-in default.
func daemonAddr() (string, error) {
	if flagAddr != "" {
		return flagAddr, nil
	}
	name := profile.Resolve(flagProfile)
	if err := profile.ValidateName(name); err != nil {
		return "", err
	}
	cfg, err := config.Load(profile.ConfigPath())
	if err != nil {
		// No config file yet; fall back to the default address.
		return config.DefaultListen, nil
	}
	cfg.ApplyEnv()
	if cfg.Listen != "" {
		return cfg.Listen, nil
	}
	return config.DefaultListen, nil
}

func apiURL(path string, query url.Values) (string, error) {
	addr, err := daemonAddr()
	if err != nil {
		return "", err
	}
	u := url.URL{Scheme: "http", Host: addr, Path: path}
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}

var httpc = &http.Client{Timeout: 15 * time.Second}

// getJSON issues a GET against the daemon and decodes the response into out.
func getJSON(path string, query url.Values, out any) error {
	u, err := apiURL(path, query)
	if err != nil {
		return err
	}
	resp, err := httpc.Get(u)
	if err != nil {
		return fmt.Errorf("is the daemon running? %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

// postJSON issues a POST with a JSON body and decodes the response into out.
// body may be nil for bodyless endpoints.
func postJSON(path string, body, out any) error {
	u, err := apiURL(path, nil)
	if err != nil {
		return err
	}
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = strings.NewReader(string(b))
	}
	resp, err := httpc.Post(u, "application/json", rdr)
	if err != nil {
		return fmt.Errorf("is the daemon running? %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("daemon: %s", apiErr.Error)
		}
		return fmt.Errorf("daemon: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}
