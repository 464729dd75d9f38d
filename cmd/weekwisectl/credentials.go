package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

const keyringService = "weekwise"

var (
	errNoToken            = errors.New("no token: pass --token, set WEEKWISE_TOKEN or run 'weekwisectl login'")
	errKeyringUnavailable = errors.New("OS keyring is not available")
	errTokenNotStored     = errors.New("no token stored for this server")
)

// Tokens are stored per server so one keyring can hold several deployments.
func keyringUser(server string) string {
	return strings.TrimRight(strings.TrimSpace(server), "/")
}

func storedToken(server string) (string, error) {
	token, err := keyring.Get(keyringService, keyringUser(server))
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", errTokenNotStored
		}
		return "", fmt.Errorf("%w: %v", errKeyringUnavailable, err)
	}
	return token, nil
}

func storeToken(server, token string) error {
	if strings.TrimSpace(token) == "" {
		return errors.New("token cannot be empty")
	}
	if err := keyring.Set(keyringService, keyringUser(server), token); err != nil {
		return fmt.Errorf("failed to store token in keyring: %w", err)
	}
	return nil
}

func deleteToken(server string) error {
	if err := keyring.Delete(keyringService, keyringUser(server)); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return errTokenNotStored
		}
		return fmt.Errorf("failed to delete token from keyring: %w", err)
	}
	return nil
}

// resolveToken prefers an explicit flag or environment value over the keyring.
func resolveToken(explicit, server string) (string, error) {
	if token := strings.TrimSpace(explicit); token != "" {
		return token, nil
	}
	token, err := storedToken(server)
	if errors.Is(err, errTokenNotStored) {
		return "", errNoToken
	}
	return token, err
}
