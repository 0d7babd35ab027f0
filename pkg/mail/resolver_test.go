package mail

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/telekom/mailtask/pkg/config"
	"github.com/telekom/mailtask/pkg/metrics"
	"github.com/telekom/mailtask/pkg/secrets"
	"github.com/telekom/mailtask/pkg/task"
)

func boolPtr(b bool) *bool { return &b }

func systemSMTP() SMTPConfig {
	return SMTPConfig{
		Host:     "smtp.system.example",
		Port:     587,
		StartTLS: true,
		Username: Some("system-user"),
		Password: Some("system-pass"),
		Origin:   OriginSystem,
	}
}

func newTestResolver(system Option[SMTPConfig]) *Resolver {
	return NewResolver(SystemDefaults{
		Mail: MailDefaults{Subject: Some("Default subject"), From: Some("noreply@example.com")},
		SMTP: system,
	}, zap.NewNop().Sugar())
}

func scopeOf(params task.Params, secretValues secrets.MapProvider) *task.Scope {
	return task.NewScope(params, secretValues, SecretAccessList())
}

func TestSelectSMTPConfig(t *testing.T) {
	user := SMTPConfig{Host: "smtp.user.example", Port: 25, Origin: OriginUser}

	tests := []struct {
		name    string
		user    Option[SMTPConfig]
		system  Option[SMTPConfig]
		want    SMTPConfig
		wantErr error
	}{
		{name: "user wins", user: Some(user), system: Some(systemSMTP()), want: user},
		{name: "system fallback", user: None[SMTPConfig](), system: Some(systemSMTP()), want: systemSMTP()},
		{name: "user only", user: Some(user), system: None[SMTPConfig](), want: user},
		{name: "neither", user: None[SMTPConfig](), system: None[SMTPConfig](), wantErr: ErrMissingSMTPConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectSMTPConfig(tt.user, tt.system)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveSMTPConfig_CredentialIsolation(t *testing.T) {
	t.Run("user host never receives system credentials", func(t *testing.T) {
		r := newTestResolver(Some(systemSMTP()))
		cfg, err := r.ResolveSMTPConfig(scopeOf(task.Params{"host": "smtp.attacker.example", "port": 25}, nil))
		require.NoError(t, err)

		assert.Equal(t, OriginUser, cfg.Origin)
		assert.Equal(t, "smtp.attacker.example", cfg.Host)
		assert.False(t, cfg.Username.IsPresent())
		assert.False(t, cfg.Password.IsPresent())
	})

	t.Run("user credentials without host are ignored", func(t *testing.T) {
		r := newTestResolver(Some(systemSMTP()))
		cfg, err := r.ResolveSMTPConfig(scopeOf(
			task.Params{"username": "task-user"},
			secrets.MapProvider{"mail.password": "task-pass"},
		))
		require.NoError(t, err)

		assert.Equal(t, systemSMTP(), cfg)
	})

	t.Run("user optional fields use built-in defaults, not system values", func(t *testing.T) {
		system := systemSMTP()
		system.StartTLS = false
		system.SSL = true
		system.Debug = true
		r := newTestResolver(Some(system))

		cfg, err := r.ResolveSMTPConfig(scopeOf(task.Params{"host": "smtp.user.example", "port": 2525}, nil))
		require.NoError(t, err)
		assert.True(t, cfg.StartTLS)
		assert.False(t, cfg.SSL)
		assert.False(t, cfg.Debug)
	})

	t.Run("no host anywhere", func(t *testing.T) {
		r := newTestResolver(None[SMTPConfig]())
		before := testutil.ToFloat64(metrics.SMTPConfigMissing)

		_, err := r.ResolveSMTPConfig(scopeOf(task.Params{"username": "u"}, nil))
		assert.ErrorIs(t, err, ErrMissingSMTPConfiguration)
		assert.Equal(t, before+1, testutil.ToFloat64(metrics.SMTPConfigMissing))
	})
}

func TestUserSMTPConfig(t *testing.T) {
	tests := []struct {
		name    string
		params  task.Params
		secrets secrets.MapProvider
		want    Option[SMTPConfig]
		wantErr error
	}{
		{
			name:   "absent without host",
			params: task.Params{"port": 25},
			want:   None[SMTPConfig](),
		},
		{
			name:   "blank host counts as absent",
			params: task.Params{"host": "  ", "port": 25},
			want:   None[SMTPConfig](),
		},
		{
			name:    "port required",
			params:  task.Params{"host": "smtp.user.example"},
			wantErr: ErrMissingRequiredField,
		},
		{
			name:    "port must be a number",
			params:  task.Params{"host": "smtp.user.example", "port": "smtp"},
			wantErr: ErrInvalidParameter,
		},
		{
			name:    "fractional port",
			params:  task.Params{"host": "smtp.user.example", "port": 25.9},
			wantErr: ErrInvalidParameter,
		},
		{
			name:    "negative port",
			params:  task.Params{"host": "smtp.user.example", "port": -5},
			wantErr: ErrInvalidParameter,
		},
		{
			name:    "zero port",
			params:  task.Params{"host": "smtp.user.example", "port": 0},
			wantErr: ErrInvalidParameter,
		},
		{
			name:    "port above range",
			params:  task.Params{"host": "smtp.user.example", "port": 70000},
			wantErr: ErrInvalidParameter,
		},
		{
			name:    "secret port above range",
			params:  task.Params{"host": "smtp.user.example"},
			secrets: secrets.MapProvider{"mail.port": "70000"},
			wantErr: ErrInvalidParameter,
		},
		{
			name:   "leading zero port is decimal",
			params: task.Params{"host": "smtp.user.example", "port": "025"},
			want:   Some(SMTPConfig{Host: "smtp.user.example", Port: 25, StartTLS: true, Origin: OriginUser}),
		},
		{
			name:    "secret port with leading zero",
			params:  task.Params{"host": "smtp.user.example"},
			secrets: secrets.MapProvider{"mail.port": "0587"},
			want:    Some(SMTPConfig{Host: "smtp.user.example", Port: 587, StartTLS: true, Origin: OriginUser}),
		},
		{
			name:   "params",
			params: task.Params{"host": "smtp.user.example", "port": 465, "ssl": true, "tls": false, "debug": true, "username": "u"},
			secrets: secrets.MapProvider{
				"mail.password": "p",
			},
			want: Some(SMTPConfig{
				Host: "smtp.user.example", Port: 465, SSL: true, Debug: true,
				Username: Some("u"), Password: Some("p"), Origin: OriginUser,
			}),
		},
		{
			name:   "everything from secrets",
			params: task.Params{},
			secrets: secrets.MapProvider{
				"mail.host":     "smtp.secret.example",
				"mail.port":     "587",
				"mail.tls":      "false",
				"mail.username": "su",
				"mail.password": "sp",
			},
			want: Some(SMTPConfig{
				Host: "smtp.secret.example", Port: 587,
				Username: Some("su"), Password: Some("sp"), Origin: OriginUser,
			}),
		},
		{
			name:   "params take precedence over secrets",
			params: task.Params{"host": "smtp.param.example", "port": 25},
			secrets: secrets.MapProvider{
				"mail.host": "smtp.secret.example",
				"mail.port": "2525",
			},
			want: Some(SMTPConfig{Host: "smtp.param.example", Port: 25, StartTLS: true, Origin: OriginUser}),
		},
		{
			name:    "debug is never read from secrets",
			params:  task.Params{"host": "smtp.user.example", "port": 25},
			secrets: secrets.MapProvider{"mail.debug": "true"},
			want:    Some(SMTPConfig{Host: "smtp.user.example", Port: 25, StartTLS: true, Origin: OriginUser}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestResolver(None[SMTPConfig]())
			got, err := r.UserSMTPConfig(scopeOf(tt.params, tt.secrets))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUserSMTPConfig_DeprecatedPasswordParam(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	r := NewResolver(SystemDefaults{}, zap.New(core).Sugar())

	before := testutil.ToFloat64(metrics.DeprecatedPasswordParam)

	cfg, err := r.UserSMTPConfig(scopeOf(task.Params{"host": "h", "port": 25, "username": "u", "password": "plain"}, nil))
	require.NoError(t, err)
	got, _ := cfg.Get()
	assert.Equal(t, Some("plain"), got.Password, "used when no secret exists")

	cfg, err = r.UserSMTPConfig(scopeOf(
		task.Params{"host": "h", "port": 25, "username": "u", "password": "plain"},
		secrets.MapProvider{"mail.password": "from-secret"},
	))
	require.NoError(t, err)
	got, _ = cfg.Get()
	assert.Equal(t, Some("from-secret"), got.Password, "a secret always wins")

	assert.Equal(t, 2, logs.FilterMessageSnippet("Unsecure 'password' parameter is deprecated").Len())
	assert.Equal(t, before+2, testutil.ToFloat64(metrics.DeprecatedPasswordParam))
}

func TestNewSystemDefaults(t *testing.T) {
	d, err := NewSystemDefaults(config.Mail{From: "noreply@example.com"})
	require.NoError(t, err)
	assert.Equal(t, Some("noreply@example.com"), d.Mail.From)
	assert.False(t, d.Mail.Subject.IsPresent())
	assert.False(t, d.SMTP.IsPresent(), "no host, no system endpoint")

	d, err = NewSystemDefaults(config.Mail{Host: "smtp", Port: 465, SSL: boolPtr(true), TLS: boolPtr(false), Username: "u"})
	require.NoError(t, err)
	cfg, ok := d.SMTP.Get()
	require.True(t, ok)
	assert.Equal(t, SMTPConfig{Host: "smtp", Port: 465, SSL: true, Username: Some("u"), Password: None[string](), Origin: OriginSystem}, cfg)

	_, err = NewSystemDefaults(config.Mail{Host: "smtp"})
	assert.ErrorIs(t, err, ErrMissingRequiredField)
}

func TestResolveSubjectAndFrom(t *testing.T) {
	defaults := MailDefaults{Subject: Some("Default"), From: Some("noreply@example.com")}

	subject, err := ResolveSubject(task.Params{"subject": "Task"}, defaults)
	require.NoError(t, err)
	assert.Equal(t, "Task", subject)

	subject, err = ResolveSubject(task.Params{}, defaults)
	require.NoError(t, err)
	assert.Equal(t, "Default", subject)

	_, err = ResolveSubject(task.Params{}, MailDefaults{})
	var missing *MissingRequiredFieldError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "subject", missing.Field)

	from, err := ResolveFrom(task.Params{"from": "Ops <ops@example.com>"}, defaults)
	require.NoError(t, err)
	assert.Equal(t, "Ops <ops@example.com>", from)

	from, err = ResolveFrom(task.Params{}, defaults)
	require.NoError(t, err)
	assert.Equal(t, "noreply@example.com", from)

	_, err = ResolveFrom(task.Params{"from": "not-an-address"}, defaults)
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = ResolveFrom(task.Params{}, MailDefaults{})
	assert.ErrorIs(t, err, ErrMissingRequiredField)
}

func TestResolveRecipients(t *testing.T) {
	tests := []struct {
		name    string
		params  task.Params
		want    []string
		wantErr error
	}{
		{name: "single string", params: task.Params{"to": "a@example.com"}, want: []string{"a@example.com"}},
		{
			name:   "list keeps order",
			params: task.Params{"to": []any{"c@example.com", "a@example.com", "b@example.com"}},
			want:   []string{"c@example.com", "a@example.com", "b@example.com"},
		},
		{name: "display name", params: task.Params{"to": "Alice <a@example.com>"}, want: []string{"Alice <a@example.com>"}},
		{name: "missing", params: task.Params{}, wantErr: ErrMissingRequiredField},
		{name: "empty list", params: task.Params{"to": []any{}}, wantErr: ErrMissingRequiredField},
		{name: "malformed", params: task.Params{"to": []any{"a@example.com", "nope"}}, wantErr: ErrInvalidAddress},
		{name: "no domain", params: task.Params{"to": "a@"}, wantErr: ErrInvalidAddress},
		{name: "nested map", params: task.Params{"to": []any{map[string]any{"x": 1}}}, wantErr: ErrInvalidParameter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveRecipients(tt.params)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveAttachments(t *testing.T) {
	got, err := ResolveAttachments(task.Params{})
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = ResolveAttachments(task.Params{"attach_files": []any{
		map[string]any{"path": "reports/2024/q1.csv", "content_type": "text/csv"},
		map[string]any{"path": "summary.pdf", "filename": "Summary.pdf"},
		map[string]any{"path": "plain"},
	}})
	require.NoError(t, err)
	assert.Equal(t, []AttachmentSpec{
		{Path: "reports/2024/q1.csv", ContentType: "text/csv", FileName: "q1.csv"},
		{Path: "summary.pdf", ContentType: DefaultAttachmentContentType, FileName: "Summary.pdf"},
		{Path: "plain", ContentType: DefaultAttachmentContentType, FileName: "plain"},
	}, got)

	_, err = ResolveAttachments(task.Params{"attach_files": []any{map[string]any{"filename": "x"}}})
	var missing *MissingRequiredFieldError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "attach_files[0].path", missing.Field)

	_, err = ResolveAttachments(task.Params{"attach_files": "file.txt"})
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestResolveAttachments_FileName(t *testing.T) {
	got, err := ResolveAttachments(task.Params{"attach_files": []any{
		map[string]any{"path": "reports/q1.csv", "filename": ""},
		map[string]any{"path": "reports/", "filename": "all.zip"},
	}})
	require.NoError(t, err)
	assert.Equal(t, "q1.csv", got[0].FileName, "an empty filename falls back to the path")
	assert.Equal(t, "all.zip", got[1].FileName)

	_, err = ResolveAttachments(task.Params{"attach_files": []any{
		map[string]any{"path": "a.txt"},
		map[string]any{"path": "reports/"},
	}})
	var missing *MissingRequiredFieldError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "attach_files[1].path", missing.Field)
	assert.Equal(t, KindConfig, newTaskError(err).Kind)
}

func TestDefaultFileName(t *testing.T) {
	assert.Equal(t, "c.txt", DefaultFileName("a/b/c.txt"))
	assert.Equal(t, "c.txt", DefaultFileName("c.txt"))
	assert.Equal(t, "", DefaultFileName("dir/"))
}

func TestResolver_Resolve(t *testing.T) {
	r := newTestResolver(Some(systemSMTP()))
	got, err := r.Resolve(scopeOf(task.Params{
		"to":   []any{"a@example.com"},
		"html": true,
	}, nil), "<p>hi</p>")
	require.NoError(t, err)

	assert.Equal(t, ResolvedMailParams{
		To:          []string{"a@example.com"},
		From:        "noreply@example.com",
		Subject:     "Default subject",
		IsHTML:      true,
		Body:        "<p>hi</p>",
		Attachments: []AttachmentSpec{},
		SMTP:        systemSMTP(),
	}, got)
}

func TestSMTPConfig_String(t *testing.T) {
	s := systemSMTP().String()
	assert.Contains(t, s, "smtp.system.example:587")
	assert.Contains(t, s, "user=system-user")
	assert.NotContains(t, s, "system-pass")
}
