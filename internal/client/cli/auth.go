package cli

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/apiclient/internal/apiclient"
	"github.com/dmitrijs2005/apiclient/internal/client/models"
	"github.com/dmitrijs2005/apiclient/internal/common"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// Register prompts for the account details and creates the account. A
// successful registration also logs the user in.
func (a *App) Register(ctx context.Context) error {
	var req models.RegisterRequest
	for _, f := range []struct {
		prompt string
		dst    *string
	}{
		{"Enter email", &req.Email},
		{"Enter first name", &req.FirstName},
		{"Enter last name", &req.LastName},
	} {
		v, err := getSimpleText(a.reader, f.prompt, a.out)
		if err != nil {
			return err
		}
		*f.dst = v
	}

	password, err := getPassword(a.reader, a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)
	req.Password = string(password)

	u, err := a.authService.Register(ctx, req)
	if err != nil {
		a.printError("Registration failed", err)
		return err
	}

	a.setUser(u)
	fmt.Fprintf(a.out, "Welcome, %s!\n", u.FirstName)
	return nil
}

// Login prompts for credentials and starts a session.
func (a *App) Login(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.reader, a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	u, err := a.authService.Login(ctx, email, string(password))
	if err != nil {
		a.printError("Login failed", err)
		return err
	}

	a.setUser(u)
	fmt.Fprintf(a.out, "Logged in as %s\n", u.Email)
	return nil
}

// Logout ends the session. Local tokens are removed even if the server
// cannot be reached.
func (a *App) Logout(ctx context.Context) error {
	if err := a.authService.Logout(ctx); err != nil {
		a.printError("Logout failed", err)
		return err
	}
	a.setUser(nil)
	fmt.Fprintln(a.out, "Logged out.")
	return nil
}

// ForgotPassword asks the server to email a password reset token.
func (a *App) ForgotPassword(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}

	if err := a.authService.ForgotPassword(ctx, email); err != nil {
		a.printError("Request failed", err)
		return err
	}

	fmt.Fprintln(a.out, "If the address is registered, a reset token has been sent.")
	return nil
}

// ResetPassword sets a new password using a token from the reset email.
func (a *App) ResetPassword(ctx context.Context) error {
	token, err := getSimpleText(a.reader, "Enter reset token", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.reader, a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.authService.ResetPassword(ctx, token, string(password)); err != nil {
		a.printError("Password reset failed", err)
		return err
	}

	fmt.Fprintln(a.out, "Password changed. You can log in now.")
	return nil
}

// VerifyEmail confirms the current user's email address.
func (a *App) VerifyEmail(ctx context.Context, token string) error {
	if err := a.authService.VerifyEmail(ctx, token); err != nil {
		a.printError("Verification failed", err)
		return err
	}

	fmt.Fprintln(a.out, "Email verified.")
	return nil
}

// Profile fetches and prints the current user.
func (a *App) Profile(ctx context.Context) error {
	u, err := a.authService.Profile(ctx)
	if err != nil {
		a.printError("Could not load profile", err)
		return err
	}
	a.setUser(u)

	fmt.Fprintf(a.out, "ID:       %s\n", u.ID)
	fmt.Fprintf(a.out, "Email:    %s (verified: %t)\n", u.Email, u.IsEmailVerified)
	fmt.Fprintf(a.out, "Name:     %s %s\n", u.FirstName, u.LastName)
	if u.Bio != "" {
		fmt.Fprintf(a.out, "Bio:      %s\n", u.Bio)
	}
	if u.Avatar != "" {
		fmt.Fprintf(a.out, "Avatar:   %s\n", u.Avatar)
	}
	return nil
}

// Avatar uploads the image at path as the user's avatar.
func (a *App) Avatar(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(a.out, "Cannot open %s: %v\n", path, err)
		return err
	}
	defer f.Close()

	name := filepath.Base(path)
	file := apiclient.File{
		Name:        name,
		ContentType: mime.TypeByExtension(filepath.Ext(name)),
		Content:     f,
	}

	av, err := a.authService.UploadAvatar(ctx, file, func(p int) {
		fmt.Fprintf(a.out, "\rUploading... %3d%%", p)
	})
	fmt.Fprintln(a.out)
	if err != nil {
		a.printError("Upload failed", err)
		return err
	}

	fmt.Fprintf(a.out, "Avatar uploaded: %s\n", av.URL)
	return nil
}

// Status prints whether a session exists and when its access token expires.
func (a *App) Status(ctx context.Context) error {
	tok, err := a.tokens.Token()
	if err != nil {
		fmt.Fprintln(a.out, "Not logged in.")
		return nil
	}

	fmt.Fprintf(a.out, "Logged in. Access token expires %s", tok.Expiry.Format(time.RFC3339))
	switch {
	case !tok.Valid():
		fmt.Fprint(a.out, " (expired, will be refreshed on next request)")
	case a.tokens.IsTokenExpired():
		fmt.Fprint(a.out, " (will be refreshed on next request)")
	}
	fmt.Fprintln(a.out)
	return nil
}

func (a *App) printError(prefix string, err error) {
	var ae *apiclient.Error
	if errors.As(err, &ae) {
		fmt.Fprintf(a.out, "%s: %s [%s]\n", prefix, ae.Message, ae.Code)
		return
	}
	fmt.Fprintf(a.out, "%s: %v\n", prefix, err)
}
