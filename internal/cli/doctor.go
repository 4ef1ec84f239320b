package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"pawbot/internal/config"
	"pawbot/internal/knowledge"
)

// NewDoctorCmd creates the doctor command.
func NewDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose system health",
		Long: `Run diagnostic checks on your pawbot installation.

This command checks:
- Configuration file presence
- Model API key availability
- Data directory and database
- Knowledge documents directory
- Server status`,
		RunE: runDoctor,
	}

	return cmd
}

type checkResult struct {
	name    string
	status  string // ok, warning, error
	message string
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cliCtx := GetCLIContext(cmd)
	if cliCtx == nil {
		return errNoContext
	}
	cfg := cliCtx.Config
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "Pawbot Doctor")
	fmt.Fprintln(out, "=============")
	fmt.Fprintln(out)

	results := []checkResult{
		checkSystemInfo(),
		checkConfigFile(cliCtx.ConfigPath),
		checkAPIKey(cfg, newSecretStore()),
		checkDataDirectory(cfg.Storage.Path),
		checkDocsDirectory(cfg.Knowledge.DocsDir),
		checkServerConnectivity(cfg.Gateway.Host, cfg.Gateway.Port),
	}
	printResults(out, results)
	return nil
}

func printResults(out io.Writer, results []checkResult) {
	hasErrors := false
	hasWarnings := false

	for _, r := range results {
		icon := "✓"
		if r.status == "warning" {
			icon = "⚠️"
			hasWarnings = true
		} else if r.status == "error" {
			icon = "✗"
			hasErrors = true
		}

		fmt.Fprintf(out, "%s %s: %s\n", icon, r.name, r.message)
	}

	fmt.Fprintln(out)
	switch {
	case hasErrors:
		fmt.Fprintln(out, "❌ Some checks failed. Please address the issues above.")
	case hasWarnings:
		fmt.Fprintln(out, "⚠️  Some warnings detected. Your setup should work but may have issues.")
	default:
		fmt.Fprintln(out, "✅ All checks passed! Pawbot is ready to use.")
	}
}

func checkSystemInfo() checkResult {
	return checkResult{
		name:   "System",
		status: "ok",
		message: fmt.Sprintf("Go %s on %s/%s",
			runtime.Version(),
			runtime.GOOS,
			runtime.GOARCH,
		),
	}
}

func checkConfigFile(configPath string) checkResult {
	if configPath == "" {
		p, err := config.DefaultConfigPath()
		if err != nil {
			return checkResult{"Config File", "error", fmt.Sprintf("Cannot determine config path: %v", err)}
		}
		configPath = p
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return checkResult{"Config File", "warning", fmt.Sprintf("Not found: %s (using defaults, run: pawbot init)", configPath)}
	}
	return checkResult{"Config File", "ok", configPath}
}

func checkAPIKey(cfg *config.Config, store config.SecretStore) checkResult {
	if store != nil {
		if key, err := store.Get(config.KeyringAPIKey); err == nil && key != "" {
			return checkResult{"API Key", "ok", "Found in OS keyring"}
		}
	}
	if cfg.Model.APIKey != "" {
		return checkResult{"API Key", "ok", "Found in configuration or PAWBOT_MODEL_API_KEY"}
	}
	if os.Getenv("OPENAI_API_KEY") != "" {
		return checkResult{"API Key", "ok", "Found in OPENAI_API_KEY"}
	}
	return checkResult{"API Key", "error", "Not set. Store one with: pawbot config set-key"}
}

func checkDataDirectory(dataPath string) checkResult {
	if dataPath == "" {
		p, err := config.DefaultDataPath()
		if err != nil {
			return checkResult{"Data Directory", "error", fmt.Sprintf("Cannot determine data path: %v", err)}
		}
		dataPath = p
	}
	dataPath, _ = config.ExpandPath(dataPath)
	dir := filepath.Dir(dataPath)

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return checkResult{"Data Directory", "warning", fmt.Sprintf("Will be created: %s", dir)}
	}

	testFile := filepath.Join(dir, ".pawbot-test")
	if err := os.WriteFile(testFile, []byte("test"), 0600); err != nil {
		return checkResult{"Data Directory", "error", fmt.Sprintf("Cannot write to: %s", dir)}
	}
	os.Remove(testFile)

	info, err := os.Stat(dataPath)
	if err != nil {
		return checkResult{"Data Directory", "ok", fmt.Sprintf("Ready: %s (database will be created on first run)", dir)}
	}
	sizeMB := float64(info.Size()) / 1024 / 1024
	return checkResult{"Data Directory", "ok", fmt.Sprintf("Found: %s (database: %.2f MB)", dir, sizeMB)}
}

func checkDocsDirectory(docsDir string) checkResult {
	if docsDir == "" {
		p, err := config.DefaultDocsDir()
		if err != nil {
			return checkResult{"Knowledge", "error", fmt.Sprintf("Cannot determine documents path: %v", err)}
		}
		docsDir = p
	}
	docsDir, _ = config.ExpandPath(docsDir)

	files := 0
	err := filepath.WalkDir(docsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && knowledge.Supported(path) {
			files++
		}
		return nil
	})
	if os.IsNotExist(err) {
		return checkResult{"Knowledge", "warning", fmt.Sprintf("Not found: %s (answers will not use a knowledge base)", docsDir)}
	}
	if err != nil {
		return checkResult{"Knowledge", "error", err.Error()}
	}
	if files == 0 {
		return checkResult{"Knowledge", "warning", fmt.Sprintf("No documents in %s", docsDir)}
	}
	return checkResult{"Knowledge", "ok", fmt.Sprintf("%d document(s) in %s", files, docsDir)}
}

func checkServerConnectivity(host string, port int) checkResult {
	if host == "" {
		host = "127.0.0.1"
	}
	if port == 0 {
		port = 18790
	}
	client := &http.Client{Timeout: 5 * time.Second}
	url := "http://" + net.JoinHostPort(host, strconv.Itoa(port)) + "/api/v1/health"

	resp, err := client.Get(url)
	if err != nil {
		return checkResult{"Server", "warning", "Not running. Start with: pawbot serve"}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return checkResult{"Server", "error", fmt.Sprintf("Health check returned %d", resp.StatusCode)}
	}
	var health struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return checkResult{"Server", "ok", fmt.Sprintf("Running on port %d", port)}
	}
	return checkResult{"Server", "ok", fmt.Sprintf("Running on port %d (status: %s, version: %s)", port, health.Status, health.Version)}
}
