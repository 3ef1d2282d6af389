package account

import (
	"github.com/goliatone/go-command"
	"github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
)

// Handlers satisfy go-command contracts so they can be registered on a
// command dispatcher directly.
var (
	_ command.Commander[SignUpMessage]                  = (*SignUpHandler)(nil)
	_ command.Commander[SignInMessage]                  = (*SignInHandler)(nil)
	_ command.Commander[SignInRefreshMessage]           = (*SignInRefreshHandler)(nil)
	_ command.Commander[UpdatePasswordMessage]          = (*UpdatePasswordHandler)(nil)
	_ command.Commander[RequestPasswordRecoveryMessage] = (*RequestPasswordRecoveryHandler)(nil)
	_ command.Commander[RecoverPasswordMessage]         = (*RecoverPasswordHandler)(nil)
	_ command.Commander[ResendEmailConfirmationMessage] = (*ResendEmailConfirmationHandler)(nil)
	_ command.Commander[ConfirmEmailMessage]            = (*ConfirmEmailHandler)(nil)
	_ command.Commander[CreateActivationOtpMessage]     = (*CreateActivationOtpHandler)(nil)
	_ command.Commander[ConfirmActivationOtpMessage]    = (*ConfirmActivationOtpHandler)(nil)
	_ command.Commander[ReadProfileMessage]             = (*ReadProfileHandler)(nil)
	_ command.Commander[UpdateProfileMessage]           = (*UpdateProfileHandler)(nil)
	_ command.Commander[UploadAvatarMessage]            = (*UploadAvatarHandler)(nil)
)

// Handlers exposes the command handlers behind the service.
type Handlers struct {
	SignUp                  *SignUpHandler
	SignIn                  *SignInHandler
	SignInRefresh           *SignInRefreshHandler
	UpdatePassword          *UpdatePasswordHandler
	RequestPasswordRecovery *RequestPasswordRecoveryHandler
	RecoverPassword         *RecoverPasswordHandler
	ResendEmailConfirmation *ResendEmailConfirmationHandler
	ConfirmEmail            *ConfirmEmailHandler
	CreateActivationOtp     *CreateActivationOtpHandler
	ConfirmActivationOtp    *ConfirmActivationOtpHandler
	ReadProfile             *ReadProfileHandler
	UpdateProfile           *UpdateProfileHandler
	UploadAvatar            *UploadAvatarHandler
}

func (s *Service) Handlers() Handlers {
	return Handlers{
		SignUp:                  s.signUp,
		SignIn:                  s.signIn,
		SignInRefresh:           s.signInRefresh,
		UpdatePassword:          s.updatePassword,
		RequestPasswordRecovery: s.requestRecovery,
		RecoverPassword:         s.recoverPassword,
		ResendEmailConfirmation: s.resendConfirmation,
		ConfirmEmail:            s.confirmEmail,
		CreateActivationOtp:     s.createActivationOtp,
		ConfirmActivationOtp:    s.confirmActivationOtp,
		ReadProfile:             s.readProfile,
		UpdateProfile:           s.updateProfile,
		UploadAvatar:            s.uploadAvatar,
	}
}

// Subscribe registers every handler on the go-command dispatcher so the
// operations can run through dispatcher.Dispatch. Results reach the caller
// through the message OnResponse callback. Handler errors are returned by
// Dispatch, so the runner does not log them again unless opts say so.
func (s *Service) Subscribe(opts ...runner.Option) []dispatcher.Subscription {
	opts = append([]runner.Option{runner.WithErrorHandler(nil)}, opts...)
	return []dispatcher.Subscription{
		dispatcher.SubscribeCommand[SignUpMessage](s.signUp, opts...),
		dispatcher.SubscribeCommand[SignInMessage](s.signIn, opts...),
		dispatcher.SubscribeCommand[SignInRefreshMessage](s.signInRefresh, opts...),
		dispatcher.SubscribeCommand[UpdatePasswordMessage](s.updatePassword, opts...),
		dispatcher.SubscribeCommand[RequestPasswordRecoveryMessage](s.requestRecovery, opts...),
		dispatcher.SubscribeCommand[RecoverPasswordMessage](s.recoverPassword, opts...),
		dispatcher.SubscribeCommand[ResendEmailConfirmationMessage](s.resendConfirmation, opts...),
		dispatcher.SubscribeCommand[ConfirmEmailMessage](s.confirmEmail, opts...),
		dispatcher.SubscribeCommand[CreateActivationOtpMessage](s.createActivationOtp, opts...),
		dispatcher.SubscribeCommand[ConfirmActivationOtpMessage](s.confirmActivationOtp, opts...),
		dispatcher.SubscribeCommand[ReadProfileMessage](s.readProfile, opts...),
		dispatcher.SubscribeCommand[UpdateProfileMessage](s.updateProfile, opts...),
		dispatcher.SubscribeCommand[UploadAvatarMessage](s.uploadAvatar, opts...),
	}
}
