// Command validate checks roomhub YAML configuration files. For each file it
// reports:
//   - YAML syntax and unknown keys
//   - Every rule enforced by the server at startup
//   - Credential material for the selected auth mode
//   - A summary of the effective hub, liveness and persistence settings
//
// With no arguments it scans ./configs for *.yaml and *.yml files.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/wricardo/mcp-training/roomhub/realtime/config"
)

// ValidationResult captures the outcome of validating a single file.
// If Valid is true, Errors contains informational messages; otherwise it
// accumulates the validation errors that were found.
type ValidationResult struct {
	File   string
	Valid  bool
	Errors []string
}

// validateConfig loads a configuration file the way the server does and
// adds checks that only matter for deployment.
func validateConfig(filePath string) ValidationResult {
	result := ValidationResult{
		File:   filepath.Base(filePath),
		Valid:  true,
		Errors: []string{},
	}

	cfg, err := config.Load(filePath)
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, problems(err)...)
		return result
	}

	if _, err := cfg.Auth.Verifier(); err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("Auth: %v", err))
	}
	for token, user := range cfg.Auth.Tokens {
		if strings.TrimSpace(user) == "" {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("Auth: token %s maps to an empty user id", mask(token)))
		}
	}
	if cfg.Auth.Mode == config.AuthJWT && len(cfg.Auth.JWT.Secret) < 32 {
		result.Valid = false
		result.Errors = append(result.Errors, "Auth: auth.jwt.secret must be at least 32 bytes")
	}
	if cfg.Ngrok.Enabled && cfg.Ngrok.Authtoken == "" && os.Getenv("NGROK_AUTHTOKEN") == "" {
		result.Valid = false
		result.Errors = append(result.Errors, "Ngrok: enabled without ngrok.authtoken or NGROK_AUTHTOKEN")
	}
	if !result.Valid {
		return result
	}

	limit := "unlimited"
	if cfg.Hub.MaxConnections > 0 {
		limit = fmt.Sprint(cfg.Hub.MaxConnections)
	}
	result.Errors = append(result.Errors,
		fmt.Sprintf("✓ Server: %s", cfg.Server.Addr),
		fmt.Sprintf("✓ Hub: max connections %s, history %d, require auth %t", limit, cfg.Hub.HistorySize, cfg.Hub.RequireAuth),
		fmt.Sprintf("✓ Liveness: period %s, timeout %s", cfg.Liveness.Period, effectiveTimeout(cfg)),
		fmt.Sprintf("✓ Auth: %s", cfg.Auth.Mode),
		fmt.Sprintf("✓ Persistence: %s", cfg.Persistence.Driver),
	)
	return result
}

func effectiveTimeout(cfg config.Config) string {
	if cfg.Liveness.Timeout > 0 {
		return cfg.Liveness.Timeout.String()
	}
	return (2 * cfg.Liveness.Period).String()
}

// problems flattens a load error into one line per violated rule.
func problems(err error) []string {
	if !errors.Is(err, config.ErrInvalidConfig) {
		return []string{err.Error()}
	}

	var out []string
	var walk func(error)
	walk = func(e error) {
		if e == config.ErrInvalidConfig {
			return
		}
		if multi, ok := e.(interface{ Unwrap() []error }); ok {
			for _, inner := range multi.Unwrap() {
				walk(inner)
			}
			return
		}
		out = append(out, e.Error())
	}
	walk(err)
	return out
}

func mask(token string) string {
	if len(token) <= 4 {
		return "****"
	}
	return token[:4] + "****"
}

// findConfigs expands directories into their YAML files and keeps plain
// file arguments as given.
func findConfigs(args []string) ([]string, error) {
	if len(args) == 0 {
		args = []string{"configs"}
	}

	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		for _, pattern := range []string{"*.yaml", "*.yml"} {
			matches, err := filepath.Glob(filepath.Join(arg, pattern))
			if err != nil {
				return nil, err
			}
			files = append(files, matches...)
		}
	}
	sort.Strings(files)
	return files, nil
}

// report prints every result and returns whether all of them were valid.
func report(w io.Writer, results []ValidationResult) bool {
	allValid := true
	for _, result := range results {
		fmt.Fprintf(w, "\n%s %s\n", strings.Repeat("=", 20), result.File)

		if result.Valid {
			fmt.Fprintln(w, "✅ VALID")
			for _, info := range result.Errors {
				fmt.Fprintln(w, "  "+info)
			}
			continue
		}

		fmt.Fprintln(w, "❌ INVALID")
		allValid = false
		for _, err := range result.Errors {
			fmt.Fprintln(w, "  ❌ "+err)
		}
	}

	fmt.Fprintf(w, "\n%s\n", strings.Repeat("=", 40))
	if allValid {
		fmt.Fprintln(w, "✅ All configurations are valid!")
	} else {
		fmt.Fprintln(w, "❌ Some configurations have errors")
	}
	return allValid
}

var errInvalid = errors.New("some configurations are invalid")

// validateAll validates every config named by args and writes the report
// to w.
func validateAll(w io.Writer, args []string) error {
	files, err := findConfigs(args)
	if err != nil {
		return fmt.Errorf("finding config files: %w", err)
	}
	if len(files) == 0 {
		return errors.New("no config files found")
	}

	results := make([]ValidationResult, 0, len(files))
	for _, file := range files {
		results = append(results, validateConfig(file))
	}
	if !report(w, results) {
		return errInvalid
	}
	return nil
}

func main() {
	app := &cli.Command{
		Name:      "validate",
		Usage:     "Validate roomhub configuration files",
		ArgsUsage: "[file or directory ...]",
		Action: func(ctx context.Context, c *cli.Command) error {
			return validateAll(os.Stdout, c.Args().Slice())
		},
	}
	if err := app.Run(context.Background(), os.Args); err != nil {
		if !errors.Is(err, errInvalid) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
