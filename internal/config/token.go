package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

const tokenKey = "api_token"

// Secrets stores local credentials in a JSON file next to the data dir.
// The CLI and the server both read the API token from here, so a token
// generated by one is visible to the other.
type Secrets struct {
	path string
}

// NewSecrets returns the secrets store for the default data location.
func NewSecrets() Secrets {
	return Secrets{path: secretsFilePath()}
}

// NewSecretsAt returns a secrets store rooted at dir (for testing).
func NewSecretsAt(dir string) Secrets {
	return Secrets{path: filepath.Join(dir, "secrets.json")}
}

func secretsFilePath() string {
	return filepath.Join(defaultDataDir(), "secrets.json")
}

// APIToken returns the local API bearer token, generating and persisting
// one on first use.
func (s Secrets) APIToken() (string, error) {
	secrets, err := s.read()
	if err != nil {
		return "", err
	}
	if token := secrets[tokenKey]; token != "" {
		return token, nil
	}

	token := uuid.NewString()
	secrets[tokenKey] = token
	if err := s.write(secrets); err != nil {
		return "", fmt.Errorf("persisting api token: %w", err)
	}
	return token, nil
}

func (s Secrets) read() (map[string]string, error) {
	secrets := map[string]string{}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return secrets, nil
		}
		return nil, fmt.Errorf("reading secrets file: %w", err)
	}
	if err := json.Unmarshal(data, &secrets); err != nil {
		return nil, fmt.Errorf("parsing secrets file: %w", err)
	}
	return secrets, nil
}

func (s Secrets) write(secrets map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("creating secrets dir: %w", err)
	}
	data, err := json.MarshalIndent(secrets, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}
