package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Intent-Gate/Intentgate/internal/domain/boundary"
)

var (
	installServer string
	installAPIKey string
)

var installCmd = &cobra.Command{
	Use:   "install <boundaries-file>",
	Short: "Install boundaries from a file into a running gateway",
	Long: `Install design boundaries from a YAML or JSON file.

The file holds a list of boundary definitions under a top-level
"boundaries" key. Each boundary is validated, encoded and installed by
the running gateway; the command reports per-boundary results and
fails if any install is rejected.

Example:
  intent-gate install boundaries.yaml \
    --server http://127.0.0.1:8080 \
    --api-key "$INTENT_GATE_ADMIN_KEY"`,
	Args: cobra.ExactArgs(1),
	RunE: runInstall,
}

func init() {
	installCmd.Flags().StringVar(&installServer, "server", "http://127.0.0.1:8080", "gateway base URL")
	installCmd.Flags().StringVar(&installAPIKey, "api-key", os.Getenv("INTENT_GATE_API_KEY"), "admin API key (default: INTENT_GATE_API_KEY)")
	rootCmd.AddCommand(installCmd)
}

// boundaryFile is the on-disk shape of an install manifest.
type boundaryFile struct {
	Boundaries []*boundary.Boundary `yaml:"boundaries" json:"boundaries"`
}

func runInstall(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read boundaries file: %w", err)
	}

	var manifest boundaryFile
	if err := yaml.Unmarshal(raw, &manifest); err != nil {
		return fmt.Errorf("failed to parse boundaries file: %w", err)
	}
	if len(manifest.Boundaries) == 0 {
		return fmt.Errorf("%s contains no boundaries", args[0])
	}

	client := &http.Client{Timeout: 30 * time.Second}
	baseURL := strings.TrimRight(installServer, "/")

	var failed int
	for _, b := range manifest.Boundaries {
		if err := installOne(client, baseURL, b); err != nil {
			fmt.Fprintf(os.Stderr, "  FAIL  %-30s %v\n", b.Name, err)
			failed++
			continue
		}
		fmt.Printf("  ok    %s\n", b.Name)
	}

	fmt.Printf("installed %d/%d boundaries\n", len(manifest.Boundaries)-failed, len(manifest.Boundaries))
	if failed > 0 {
		return fmt.Errorf("%d boundary installs failed", failed)
	}
	return nil
}

func installOne(client *http.Client, baseURL string, b *boundary.Boundary) error {
	payload, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal boundary: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/api/v1/boundaries", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if installAPIKey != "" {
		req.Header.Set("Authorization", "Bearer "+installAPIKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
