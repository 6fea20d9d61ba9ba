package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	// totpSecretSize is 20 bytes (160 bits), the RFC 4226 recommended
	// shared-secret length.
	totpSecretSize = 20
	// totpPeriod is the time-step size in seconds. Fixed wire format;
	// authenticator apps assume 30.
	totpPeriod = 30

	backupCodeBytes = 4 // 32-bit codes, hex-encoded to 8 digits
)

// DefaultBackupCodeCount is the size of the backup-code set issued at
// enrollment.
const DefaultBackupCodeCount = 8

// Enrollment packages everything an authenticator app needs to onboard.
type Enrollment struct {
	Secret          string   `json:"secret"`
	ProvisioningURI string   `json:"provisioning_uri"`
	QRCodeDataURL   string   `json:"qr_code"`
	BackupCodes     []string `json:"backup_codes"`
}

// MFAManager handles TOTP secret generation, code verification, and backup
// codes. Code derivation follows RFC 4226 §5.3 exactly (8-byte big-endian
// counter, HMAC-SHA1, dynamic truncation to 31 bits, mod 10^6); any
// deviation breaks interoperability with standard authenticator apps.
type MFAManager struct {
	issuer string
}

// NewMFAManager creates an MFA manager. issuer appears in provisioning URIs.
func NewMFAManager(issuer string) *MFAManager {
	return &MFAManager{issuer: issuer}
}

// GenerateSecret creates a new 160-bit TOTP secret, base32-encoded for
// storage and transport. Rotation replaces a secret; it is never edited.
func (m *MFAManager) GenerateSecret(accountName string) (*otp.Key, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      m.issuer,
		AccountName: accountName,
		SecretSize:  totpSecretSize,
		Period:      totpPeriod,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate totp secret: %w", err)
	}
	return key, nil
}

// GenerateCode computes the 6-digit code for the secret at time t.
// Deterministic for a fixed secret and time step.
func (m *MFAManager) GenerateCode(secret string, t time.Time) (string, error) {
	code, err := totp.GenerateCodeCustom(secret, t, totp.ValidateOpts{
		Period:    totpPeriod,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to compute totp code: %w", err)
	}
	return code, nil
}

// VerifyCode checks the candidate against the codes for time steps in
// [now-skew, now+skew], tolerating clock drift of ±30s per skew step.
func (m *MFAManager) VerifyCode(secret, candidate string, skew uint) bool {
	return m.VerifyCodeAt(secret, candidate, time.Now(), skew)
}

// VerifyCodeAt is VerifyCode with an explicit reference time.
func (m *MFAManager) VerifyCodeAt(secret, candidate string, t time.Time, skew uint) bool {
	valid, err := totp.ValidateCustom(candidate, secret, t, totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false
	}
	return valid
}

// GenerateBackupCodes creates count unique 8-hex-digit single-use codes.
func (m *MFAManager) GenerateBackupCodes(count int) ([]string, error) {
	if count <= 0 {
		count = DefaultBackupCodeCount
	}

	codes := make([]string, 0, count)
	seen := make(map[string]bool, count)
	for len(codes) < count {
		buf := make([]byte, backupCodeBytes)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("failed to generate backup code: %w", err)
		}
		code := hex.EncodeToString(buf)
		if seen[code] {
			continue
		}
		seen[code] = true
		codes = append(codes, code)
	}
	return codes, nil
}

// VerifyAndConsumeBackupCode succeeds only when code is a member of issued
// and absent from used. Consumption is the caller's responsibility: on true,
// the caller must add the code to the used set inside its own transaction.
func (m *MFAManager) VerifyAndConsumeBackupCode(code string, issued []string, used map[string]bool) bool {
	if used[code] {
		return false
	}
	for _, candidate := range issued {
		if len(candidate) == len(code) &&
			subtle.ConstantTimeCompare([]byte(candidate), []byte(code)) == 1 {
			return true
		}
	}
	return false
}

// Enroll generates a complete enrollment package: fresh secret, the
// otpauth:// provisioning URI, a QR rendering of it, and the backup codes.
func (m *MFAManager) Enroll(accountName string) (*Enrollment, error) {
	key, err := m.GenerateSecret(accountName)
	if err != nil {
		return nil, err
	}

	qr, err := qrcode.New(key.URL(), qrcode.Highest)
	if err != nil {
		return nil, fmt.Errorf("failed to create qr code: %w", err)
	}
	qrImage, err := qr.PNG(200)
	if err != nil {
		return nil, fmt.Errorf("failed to encode qr code: %w", err)
	}

	backupCodes, err := m.GenerateBackupCodes(DefaultBackupCodeCount)
	if err != nil {
		return nil, err
	}

	return &Enrollment{
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
		QRCodeDataURL:   "data:image/png;base64," + base64.StdEncoding.EncodeToString(qrImage),
		BackupCodes:     backupCodes,
	}, nil
}
