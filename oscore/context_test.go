package oscore_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-edhoc/edhoc-oscore/oscore"
)

// Shared inputs of RFC 8613 Appendix C.1-C.3.
var (
	masterSecretHex = "0102030405060708090a0b0c0d0e0f10"
	masterSaltHex   = "9e7ca92223786340"
	idContextHex    = "37cbf3210017a2d3"
)

// C.1.1: client with empty sender ID.
func TestDeriveClientContext(t *testing.T) {
	ctx, err := oscore.Init(oscore.Params{
		MasterSecret: mustHex(t, masterSecretHex),
		MasterSalt:   mustHex(t, masterSaltHex),
		SenderID:     nil,
		RecipientID:  []byte{0x01},
	})
	require.NoError(t, err)

	require.Equal(t, mustHex(t, "f0910ed7295e6ad4b54fc793154302ff"), ctx.Sender.Key)
	require.Equal(t, mustHex(t, "ffb14e093c94c9cac9471648b4f98710"), ctx.Recipient.Key)
	require.Equal(t, mustHex(t, "4622d4dd6d944168eefb54987c"), ctx.Common.CommonIV)
}

// C.1.2: the server side of the same exchange mirrors the IDs and swaps
// the derived keys.
func TestDeriveServerContext(t *testing.T) {
	ctx, err := oscore.Init(oscore.Params{
		MasterSecret: mustHex(t, masterSecretHex),
		MasterSalt:   mustHex(t, masterSaltHex),
		SenderID:     []byte{0x01},
		RecipientID:  nil,
		Role:         oscore.Server,
	})
	require.NoError(t, err)

	require.Equal(t, mustHex(t, "ffb14e093c94c9cac9471648b4f98710"), ctx.Sender.Key)
	require.Equal(t, mustHex(t, "f0910ed7295e6ad4b54fc793154302ff"), ctx.Recipient.Key)
	require.Equal(t, mustHex(t, "4622d4dd6d944168eefb54987c"), ctx.Common.CommonIV)
}

// C.2.1: no master salt; HKDF-Extract falls back to the all-zero salt.
func TestDeriveContextNoSalt(t *testing.T) {
	ctx, err := oscore.Init(oscore.Params{
		MasterSecret: mustHex(t, masterSecretHex),
		SenderID:     []byte{0x00},
		RecipientID:  []byte{0x01},
	})
	require.NoError(t, err)

	require.Equal(t, mustHex(t, "321b26943253c7ffb6003b0b64d74041"), ctx.Sender.Key)
	require.Equal(t, mustHex(t, "e57b5635815177cd679ab4bcec9d7dda"), ctx.Recipient.Key)
	require.Equal(t, mustHex(t, "be35ae297d2dace910c52e99f9"), ctx.Common.CommonIV)
}

// C.3.2: server key derivation with an ID context present.
func TestDeriveServerContextWithIDContext(t *testing.T) {
	ctx, err := oscore.Init(oscore.Params{
		MasterSecret: mustHex(t, masterSecretHex),
		MasterSalt:   mustHex(t, masterSaltHex),
		SenderID:     []byte{0x01},
		RecipientID:  nil,
		IDContext:    mustHex(t, idContextHex),
		Role:         oscore.Server,
	})
	require.NoError(t, err)

	require.Equal(t, mustHex(t, "e39a0c7c77b43f03b4b39ab9a268699f"), ctx.Sender.Key)
	require.Equal(t, mustHex(t, "af2a1300a5e95788b356336eeecd2b92"), ctx.Recipient.Key)
	require.Equal(t, mustHex(t, "2ca58fb85ff1b81c0b7181b85e"), ctx.Common.CommonIV)
}

func TestNextSSNMonotonic(t *testing.T) {
	ctx, err := oscore.Init(oscore.Params{MasterSecret: mustHex(t, masterSecretHex)})
	require.NoError(t, err)

	for want := uint64(0); want < 5; want++ {
		got, err := ctx.NextSSN()
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestSSNOverflow(t *testing.T) {
	ctx, err := oscore.Init(oscore.Params{MasterSecret: mustHex(t, masterSecretHex)})
	require.NoError(t, err)

	// Just below the bound: the final sequence number is still usable.
	ctx.Sender.SSN = 1<<40 - 1
	got, err := ctx.NextSSN()
	require.NoError(t, err)
	require.Equal(t, uint64(1<<40-1), got)

	_, err = ctx.NextSSN()
	var oerr *oscore.Error
	require.ErrorAs(t, err, &oerr)
	require.Equal(t, oscore.CodeSsnOverflow, oerr.Code)
}

func replayCheck(t *testing.T, rc *oscore.RecipientContext, ssn uint64) error {
	t.Helper()
	return rc.CheckReplay(oscore.PIVFromSSN(ssn))
}

func replayCommit(rc *oscore.RecipientContext, ssn uint64) {
	rc.CommitReplay(oscore.PIVFromSSN(ssn))
}

func TestReplayWindowDuplicate(t *testing.T) {
	ctx, err := oscore.Init(oscore.Params{MasterSecret: mustHex(t, masterSecretHex)})
	require.NoError(t, err)
	rc := &ctx.Recipient

	require.NoError(t, replayCheck(t, rc, 0))
	replayCommit(rc, 0)

	err = replayCheck(t, rc, 0)
	var oerr *oscore.Error
	require.ErrorAs(t, err, &oerr)
	require.Equal(t, oscore.CodeReplay, oerr.Code)
}

func TestReplayWindowOutOfOrder(t *testing.T) {
	ctx, err := oscore.Init(oscore.Params{MasterSecret: mustHex(t, masterSecretHex)})
	require.NoError(t, err)
	rc := &ctx.Recipient

	replayCommit(rc, 10)
	require.NoError(t, replayCheck(t, rc, 7))
	replayCommit(rc, 7)

	// The same out-of-order PIV a second time is a replay.
	require.Error(t, replayCheck(t, rc, 7))
	// A different one inside the window is still fine.
	require.NoError(t, replayCheck(t, rc, 8))
}

func TestReplayWindowBelowWindow(t *testing.T) {
	ctx, err := oscore.Init(oscore.Params{MasterSecret: mustHex(t, masterSecretHex)})
	require.NoError(t, err)
	rc := &ctx.Recipient

	replayCommit(rc, 100)
	// 100 - 32 = 68 falls outside the window; 69 is the oldest PIV inside it.
	require.NoError(t, replayCheck(t, rc, 69))
	require.Error(t, replayCheck(t, rc, 68))
	require.Error(t, replayCheck(t, rc, 1))
}

func TestReplayWindowSlide(t *testing.T) {
	ctx, err := oscore.Init(oscore.Params{MasterSecret: mustHex(t, masterSecretHex)})
	require.NoError(t, err)
	rc := &ctx.Recipient

	replayCommit(rc, 1)
	replayCommit(rc, 2)
	// A jump far past the window forgets everything below it.
	replayCommit(rc, 200)
	require.Error(t, replayCheck(t, rc, 2))
	require.NoError(t, replayCheck(t, rc, 199))
}
