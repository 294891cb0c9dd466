package capture

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/steveyegge/authcap/internal/credstore"
	"github.com/steveyegge/authcap/internal/exitcode"
)

// ErrInputClosed is returned when stdin reaches EOF before the continue signal.
var ErrInputClosed = errors.New("input closed before continue signal")

// Options configures one capture run.
type Options struct {
	Mode        Mode
	TargetIndex int // relogin only
	Store       *credstore.Store
	Browser     Browser
	TargetURL   string
	Lang        string

	In  io.Reader // continue signal
	Out io.Writer // operator instructions
}

// Run performs one capture: open the session, wait for the continue signal,
// persist the captured session. It returns the credential file written.
func Run(ctx context.Context, opts Options) (credstore.Entry, error) {
	msg := newMessages(opts.Lang)
	if opts.TargetURL == "" {
		opts.TargetURL = DefaultTargetURL
	}

	var (
		rec  *credstore.Record
		seed *credstore.StorageState
	)
	if opts.Mode == ModeRelogin {
		if opts.TargetIndex < 0 {
			return credstore.Entry{}, exitcode.Newf(exitcode.ErrUsage, msg.text("无效账号索引: %d", "invalid account index: %d"), opts.TargetIndex)
		}
		if !opts.Store.Exists(opts.TargetIndex) {
			return credstore.Entry{}, exitcode.CredentialNotFound(opts.Store.Path(opts.TargetIndex))
		}
		var err error
		rec, err = opts.Store.Load(opts.TargetIndex)
		if err != nil {
			return credstore.Entry{}, err
		}
		state := rec.Session()
		seed = &state
	}

	sess, err := opts.Browser.Launch(ctx, seed)
	if err != nil {
		return credstore.Entry{}, err
	}
	defer func() { _ = sess.Close() }()

	if err := sess.Navigate(ctx, opts.TargetURL); err != nil {
		return credstore.Entry{}, err
	}

	if opts.Mode == ModeRelogin {
		fmt.Fprintln(opts.Out, msg.text(
			fmt.Sprintf("[Relogin] 已打开账号 #%d，请检查是否失效并完成登录。", opts.TargetIndex),
			fmt.Sprintf("[Relogin] Account #%d is open. Please verify session and login if needed.", opts.TargetIndex)))
	} else {
		fmt.Fprintln(opts.Out, msg.text(
			"[Setup] 浏览器已打开，请完成登录。",
			"[Setup] Browser is open. Please log in."))
	}
	fmt.Fprintln(opts.Out, msg.text(
		"[Setup] 完成后在页面点击“继续”。",
		"[Setup] Click continue in the Web UI after you finish."))

	if err := waitForContinue(ctx, opts.In); err != nil {
		return credstore.Entry{}, err
	}

	state, err := sess.StorageState(ctx)
	if err != nil {
		return credstore.Entry{}, err
	}

	var entry credstore.Entry
	if opts.Mode == ModeRelogin {
		rec.ReplaceSession(state)
		if err := opts.Store.Save(opts.TargetIndex, rec); err != nil {
			return credstore.Entry{}, err
		}
		entry = credstore.Entry{Index: opts.TargetIndex, File: filepath.Base(opts.Store.Path(opts.TargetIndex))}
		fmt.Fprintln(opts.Out, msg.text("[Relogin] 已更新 "+entry.File, "[Relogin] Updated "+entry.File))
	} else {
		entry, err = opts.Store.Create(credstore.NewRecord(state))
		if err != nil {
			return credstore.Entry{}, err
		}
		fmt.Fprintln(opts.Out, msg.text("[Setup] 已保存 "+entry.File, "[Setup] Saved "+entry.File))
	}
	return entry, nil
}

// waitForContinue blocks until one line (or any trailing partial line) is
// read from in, or ctx is done.
func waitForContinue(ctx context.Context, in io.Reader) error {
	done := make(chan error, 1)
	go func() {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err == io.EOF && line != "" {
			err = nil
		} else if err == io.EOF {
			err = ErrInputClosed
		}
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
