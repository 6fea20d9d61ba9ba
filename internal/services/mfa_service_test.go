package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/cyberguard/aegis/internal/auth"
	"github.com/cyberguard/aegis/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mfaFixture struct {
	service *MFAService
	repo    *mockUserRepo
	audit   *mockAuditRepo
	mfa     *auth.MFAManager
}

func newMFAFixture(t *testing.T) *mfaFixture {
	t.Helper()
	repo := newMockUserRepo()
	audit := &mockAuditRepo{}
	mfa := auth.NewMFAManager("Aegis")
	service := NewMFAService(repo, audit, mfa, testLogger())
	return &mfaFixture{service: service, repo: repo, audit: audit, mfa: mfa}
}

func (f *mfaFixture) seedUser(t *testing.T) *models.User {
	t.Helper()
	user := &models.User{
		ID:           "user-1",
		Email:        "user@example.com",
		PasswordHash: hashForTest(t, testPassword),
		Name:         "Test User",
		Role:         models.RoleUser,
	}
	f.repo.add(user)
	return user
}

func TestMFAService_Enroll_StagesSecret(t *testing.T) {
	f := newMFAFixture(t)
	user := f.seedUser(t)

	enrollment, err := f.service.Enroll(context.Background(), user.ID)
	require.NoError(t, err)

	assert.NotEmpty(t, enrollment.Secret)
	assert.Contains(t, enrollment.ProvisioningURI, "otpauth://totp/")
	assert.True(t, strings.HasPrefix(enrollment.QRCodeDataURL, "data:image/png;base64,"))
	assert.Len(t, enrollment.BackupCodes, auth.DefaultBackupCodeCount)

	// Staged but not yet active.
	assert.False(t, user.MFAEnabled)
	require.NotNil(t, user.MFASecret)
	assert.Equal(t, enrollment.Secret, *user.MFASecret)
}

func TestMFAService_Enroll_ReplacesStagedSecret(t *testing.T) {
	f := newMFAFixture(t)
	user := f.seedUser(t)

	first, err := f.service.Enroll(context.Background(), user.ID)
	require.NoError(t, err)
	second, err := f.service.Enroll(context.Background(), user.ID)
	require.NoError(t, err)

	assert.NotEqual(t, first.Secret, second.Secret)
	assert.Equal(t, second.Secret, *user.MFASecret)
}

func TestMFAService_Enroll_AlreadyEnabled(t *testing.T) {
	f := newMFAFixture(t)
	user := f.seedUser(t)
	secret := "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"
	user.MFAEnabled = true
	user.MFASecret = &secret

	_, err := f.service.Enroll(context.Background(), user.ID)
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestMFAService_Enroll_UnknownUser(t *testing.T) {
	f := newMFAFixture(t)

	_, err := f.service.Enroll(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMFAService_ConfirmEnrollment_Activates(t *testing.T) {
	f := newMFAFixture(t)
	user := f.seedUser(t)

	enrollment, err := f.service.Enroll(context.Background(), user.ID)
	require.NoError(t, err)

	code, err := f.mfa.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)

	require.NoError(t, f.service.ConfirmEnrollment(context.Background(), user.ID, code))
	assert.True(t, user.MFAEnabled)
	assert.Equal(t, 1, f.audit.countType(models.AuditEventMFAEnroll))
}

func TestMFAService_ConfirmEnrollment_InvalidCode(t *testing.T) {
	f := newMFAFixture(t)
	user := f.seedUser(t)

	_, err := f.service.Enroll(context.Background(), user.ID)
	require.NoError(t, err)

	err = f.service.ConfirmEnrollment(context.Background(), user.ID, "000000")
	assert.ErrorIs(t, err, models.ErrInvalidMFACode)
	assert.False(t, user.MFAEnabled)
	assert.Equal(t, 1, f.audit.countType(models.AuditEventMFAFailed))
}

func TestMFAService_ConfirmEnrollment_NothingStaged(t *testing.T) {
	f := newMFAFixture(t)
	user := f.seedUser(t)

	err := f.service.ConfirmEnrollment(context.Background(), user.ID, "123456")
	assert.ErrorIs(t, err, models.ErrBadRequest)
}

func TestMFAService_ConfirmEnrollment_AlreadyEnabled(t *testing.T) {
	f := newMFAFixture(t)
	user := f.seedUser(t)
	secret := "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"
	user.MFAEnabled = true
	user.MFASecret = &secret

	err := f.service.ConfirmEnrollment(context.Background(), user.ID, "123456")
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestMFAService_Disable_RequiresBothFactors(t *testing.T) {
	f := newMFAFixture(t)
	user := f.seedUser(t)

	enrollment, err := f.service.Enroll(context.Background(), user.ID)
	require.NoError(t, err)
	code, err := f.mfa.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, f.service.ConfirmEnrollment(context.Background(), user.ID, code))

	// Wrong password is rejected before the code is examined.
	err = f.service.Disable(context.Background(), user.ID, "wrong-password", code)
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	// Right password, wrong code.
	err = f.service.Disable(context.Background(), user.ID, testPassword, "000000")
	assert.ErrorIs(t, err, models.ErrInvalidMFACode)

	// Both factors valid.
	code, err = f.mfa.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, f.service.Disable(context.Background(), user.ID, testPassword, code))

	assert.False(t, user.MFAEnabled)
	assert.Nil(t, user.MFASecret)
	assert.Empty(t, user.BackupCodes)
	assert.Equal(t, 1, f.audit.countType(models.AuditEventMFADisable))
}

func TestMFAService_Disable_NotEnrolled(t *testing.T) {
	f := newMFAFixture(t)
	user := f.seedUser(t)

	err := f.service.Disable(context.Background(), user.ID, testPassword, "123456")
	assert.ErrorIs(t, err, models.ErrBadRequest)
}
