package cmd

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

// globalOptions are the persistent flags of the root command.
type globalOptions struct {
	debug      bool
	configPath string

	dbPath        string
	encryptionKey string

	googleClientID     string
	googleClientSecret string
	googleRedirectURI  string

	openAIKey    string
	xAIKey       string
	anthropicKey string
	llmProviders string
}

// envBinding maps a flag to the environment variable used when the flag is
// not given.
type envBinding struct {
	flag string
	env  string
}

var globalEnv = []envBinding{
	{"config", "INBOX_CONFIG"},
	{"db-path", "INBOX_DB_PATH"},
	{"encryption-key", "INBOX_ENCRYPTION_KEY"},
	{"google-client-id", "GOOGLE_CLIENT_ID"},
	{"google-client-secret", "GOOGLE_CLIENT_SECRET"},
	{"google-redirect-uri", "GOOGLE_REDIRECT_URI"},
	{"openai-api-key", "OPENAI_API_KEY"},
	{"xai-api-key", "XAI_API_KEY"},
	{"anthropic-api-key", "ANTHROPIC_API_KEY"},
	{"llm-providers", "LLM_PROVIDERS"},
}

func (o *globalOptions) register(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.BoolVar(&o.debug, "debug", false, "Enable debug logging")
	f.StringVar(&o.configPath, "config", "", "Path to the YAML settings file. Can also use INBOX_CONFIG env var.")
	f.StringVar(&o.dbPath, "db-path", defaultDBPath(), "Path to the SQLite database. Can also use INBOX_DB_PATH env var.")
	f.StringVar(&o.encryptionKey, "encryption-key", "", "AES-256 key sealing OAuth tokens at rest (32 bytes, base64 encoded). Can also use INBOX_ENCRYPTION_KEY env var. Generate with: openssl rand -base64 32")
	f.StringVar(&o.googleClientID, "google-client-id", "", "Google OAuth Client ID. Can also use GOOGLE_CLIENT_ID env var.")
	f.StringVar(&o.googleClientSecret, "google-client-secret", "", "Google OAuth Client Secret. Can also use GOOGLE_CLIENT_SECRET env var.")
	f.StringVar(&o.googleRedirectURI, "google-redirect-uri", "", "OAuth redirect URI registered for the client. Can also use GOOGLE_REDIRECT_URI env var.")
	f.StringVar(&o.openAIKey, "openai-api-key", "", "OpenAI API key. Can also use OPENAI_API_KEY env var.")
	f.StringVar(&o.xAIKey, "xai-api-key", "", "xAI API key. Can also use XAI_API_KEY env var.")
	f.StringVar(&o.anthropicKey, "anthropic-api-key", "", "Anthropic API key. Can also use ANTHROPIC_API_KEY env var.")
	f.StringVar(&o.llmProviders, "llm-providers", "", "Comma-separated provider fallback order (openai,xai,anthropic). Overrides llm.order from the settings file. Can also use LLM_PROVIDERS env var.")
}

// applyEnv fills every unchanged flag in bindings from its environment
// variable.
func applyEnv(cmd *cobra.Command, bindings []envBinding) error {
	for _, b := range bindings {
		flag := cmd.Flag(b.flag)
		if flag == nil || flag.Changed {
			continue
		}
		value := os.Getenv(b.env)
		if value == "" {
			continue
		}
		if err := flag.Value.Set(value); err != nil {
			return fmt.Errorf("invalid %s value %q: %w", b.env, value, err)
		}
	}
	return nil
}

// decodeEncryptionKey parses a base64 AES-256 key. Empty input yields nil.
func decodeEncryptionKey(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key (must be base64 encoded): %w", err)
	}
	if len(decoded) != 32 {
		return nil, fmt.Errorf("encryption key must be exactly 32 bytes (got %d bytes)", len(decoded))
	}
	return decoded, nil
}

// parseCommaSeparatedList splits a comma-separated string into a slice,
// trimming whitespace and dropping empty entries.
func parseCommaSeparatedList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func defaultDBPath() string {
	return filepath.Join(homeDir(), ".local", "share", "inboxbuckets", "inboxbuckets.db")
}

func homeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	// Windows fallback
	return os.Getenv("HOMEDRIVE") + os.Getenv("HOMEPATH")
}
