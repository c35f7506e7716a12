package auth

import (
	"fmt"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// EnrollMFA generates a TOTP secret for the user and stores it. The
// returned otpauth URL is rendered by the client for authenticator apps.
func (s *Service) EnrollMFA(userID int64) (string, error) {
	u, err := s.store.GetUser(userID)
	if err != nil {
		return "", err
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "crypta",
		AccountName: u.Username,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("generate totp secret: %w", err)
	}
	if err := s.store.SetMFASecret(userID, key.Secret()); err != nil {
		return "", err
	}
	s.logger.Info("mfa enrolled", "username", u.Username)
	return key.URL(), nil
}

func validateTOTP(secret, code string) bool {
	return totp.Validate(code, secret)
}
