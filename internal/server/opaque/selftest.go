package opaque

import (
	"context"
	"fmt"

	"github.com/cretz/gopaque/gopaque"
)

// RegisterPassword provisions a password for username by running the genuine
// client half of the registration exchange in process against the Service.
// Going through the real protocol instead of writing the file directly keeps
// the stored artifact honest: if this succeeds, a real client can log in.
func (s *Service) RegisterPassword(ctx context.Context, username, password string) error {
	username = NormalizeUserID(username)
	user := gopaque.NewUserRegister(s.driver.crypto, []byte(username), nil)

	initMsg, err := user.Init([]byte(password)).ToBytes()
	if err != nil {
		return fmt.Errorf("marshal registration init: %w", err)
	}
	start, err := s.RegistrationStart(ctx, username, initMsg)
	if err != nil {
		return err
	}

	var serverInit gopaque.ServerRegisterInit
	if err := serverInit.FromBytes(s.driver.crypto, start.RegistrationResponse); err != nil {
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	uploadMsg, err := user.Complete(&serverInit).ToBytes()
	if err != nil {
		return fmt.Errorf("marshal registration upload: %w", err)
	}
	return s.RegistrationFinish(ctx, start.ServerData, uploadMsg)
}
