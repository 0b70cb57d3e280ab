package engine

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/certificate-manager/governance"
	"github.com/ruteri/certificate-manager/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	owner    = interfaces.Identity{19: 0x01}
	newOwner = interfaces.Identity{19: 0x02}
	stranger = interfaces.Identity{19: 0x03}
	signer1  = interfaces.Identity{19: 0x11}
	signer2  = interfaces.Identity{19: 0x12}
	signer3  = interfaces.Identity{19: 0x13}
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T, policy governance.SignerPolicy) *Engine {
	e, err := New(&Config{Owner: owner, SignerPolicy: policy, Log: testLogger()})
	require.NoError(t, err)
	return e
}

func kinds(r *interfaces.Receipt) []interfaces.NotificationKind {
	res := []interfaces.NotificationKind{}
	for _, n := range r.Notifications {
		res = append(res, n.Kind)
	}
	return res
}

func TestNew_RejectsZeroOwner(t *testing.T) {
	_, err := New(&Config{Owner: interfaces.ZeroIdentity})
	assert.ErrorIs(t, err, interfaces.ErrInvalidArgument)
}

func TestEngine_ApprovalScenario(t *testing.T) {
	e := newTestEngine(t, governance.IdempotentSigners)

	_, err := e.AddSigner(owner, signer1)
	require.NoError(t, err)
	_, err = e.AddSigner(owner, signer2)
	require.NoError(t, err)
	assert.Equal(t, 2, e.SignersCount())

	_, err = e.SetMinimumSigners(owner, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, e.MinimumSigners())

	id, receipt, err := e.CreateCertificate(signer1, []byte("Test Certificate Data"))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)
	assert.Equal(t, []interfaces.NotificationKind{interfaces.CertificateCreated}, kinds(receipt))

	cert, err := e.GetCertificate(id)
	require.NoError(t, err)
	assert.Equal(t, []byte("Test Certificate Data"), cert.Payload)
	assert.Empty(t, cert.Approvals)
	assert.Equal(t, interfaces.StatusPending, cert.Status)
	assert.Equal(t, 2, cert.RequiredSignatures)

	cert, receipt, err = e.SignCertificate(signer2, id)
	require.NoError(t, err)
	assert.Equal(t, []interfaces.Identity{signer2}, cert.Approvals)
	assert.Equal(t, interfaces.StatusPending, cert.Status)
	assert.Equal(t, []interfaces.NotificationKind{interfaces.CertificateSigned}, kinds(receipt))

	pending := e.GetUnsignedCertificates()
	require.Len(t, pending, 1)
	assert.Equal(t, id, pending[0].ID)

	cert, receipt, err = e.SignCertificate(signer1, id)
	require.NoError(t, err)
	assert.Equal(t, []interfaces.Identity{signer2, signer1}, cert.Approvals)
	assert.Equal(t, interfaces.StatusApproved, cert.Status)
	assert.Equal(t, []interfaces.NotificationKind{
		interfaces.CertificateSigned,
		interfaces.CertificateApproved,
	}, kinds(receipt))
	assert.Empty(t, e.GetUnsignedCertificates())

	_, err = e.ChangeOwner(owner, newOwner)
	require.NoError(t, err)
	assert.Equal(t, newOwner, e.Owner())
}

func TestEngine_ChangeOwnerByNonOwner(t *testing.T) {
	e := newTestEngine(t, governance.IdempotentSigners)

	for _, caller := range []interfaces.Identity{stranger, signer1, interfaces.ZeroIdentity} {
		receipt, err := e.ChangeOwner(caller, caller)
		assert.ErrorIs(t, err, interfaces.ErrUnauthorized)
		assert.Nil(t, receipt)
		assert.Equal(t, owner, e.Owner())
	}
	assert.Empty(t, e.NotificationsAfter(0))
}

func TestEngine_ChangeOwnerToZero(t *testing.T) {
	e := newTestEngine(t, governance.IdempotentSigners)

	_, err := e.ChangeOwner(owner, interfaces.ZeroIdentity)
	assert.ErrorIs(t, err, interfaces.ErrInvalidArgument)
	assert.Equal(t, owner, e.Owner())
}

func TestEngine_PreviousOwnerLosesPrivileges(t *testing.T) {
	e := newTestEngine(t, governance.IdempotentSigners)

	receipt, err := e.ChangeOwner(owner, newOwner)
	require.NoError(t, err)
	require.Len(t, receipt.Notifications, 1)
	assert.Equal(t, owner, *receipt.Notifications[0].PreviousOwner)
	assert.Equal(t, newOwner, *receipt.Notifications[0].NewOwner)

	_, err = e.AddSigner(owner, signer1)
	assert.ErrorIs(t, err, interfaces.ErrUnauthorized)
	_, err = e.SetMinimumSigners(owner, 3)
	assert.ErrorIs(t, err, interfaces.ErrUnauthorized)

	_, err = e.AddSigner(newOwner, signer1)
	require.NoError(t, err)
	assert.True(t, e.IsSigner(signer1))
}

func TestEngine_SignersCountIsDistinct(t *testing.T) {
	e := newTestEngine(t, governance.IdempotentSigners)

	for _, s := range []interfaces.Identity{signer1, signer2, signer1, signer3, signer2} {
		_, err := e.AddSigner(owner, s)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, e.SignersCount())
	assert.Equal(t, []interfaces.Identity{signer1, signer2, signer3}, e.Signers())
}

func TestEngine_AddSignerPolicies(t *testing.T) {
	t.Run("idempotent", func(t *testing.T) {
		e := newTestEngine(t, governance.IdempotentSigners)
		_, err := e.AddSigner(owner, signer1)
		require.NoError(t, err)

		receipt, err := e.AddSigner(owner, signer1)
		require.NoError(t, err)
		assert.Empty(t, receipt.Notifications)
		assert.Len(t, e.NotificationsAfter(0), 1)
	})

	t.Run("strict", func(t *testing.T) {
		e := newTestEngine(t, governance.StrictSigners)
		_, err := e.AddSigner(owner, signer1)
		require.NoError(t, err)

		receipt, err := e.AddSigner(owner, signer1)
		assert.ErrorIs(t, err, interfaces.ErrAlreadyExists)
		assert.Nil(t, receipt)
		assert.Equal(t, 1, e.SignersCount())
	})
}

func TestEngine_SetMinimumSigners(t *testing.T) {
	e := newTestEngine(t, governance.IdempotentSigners)
	assert.Equal(t, governance.DefaultMinimumSigners, e.MinimumSigners())

	for _, n := range []int{1, 2, 5, 100} {
		_, err := e.SetMinimumSigners(owner, n)
		require.NoError(t, err)
		assert.Equal(t, n, e.MinimumSigners())
	}

	for _, n := range []int{0, -1} {
		_, err := e.SetMinimumSigners(owner, n)
		assert.ErrorIs(t, err, interfaces.ErrInvalidArgument)
		assert.Equal(t, 100, e.MinimumSigners())
	}

	_, err := e.SetMinimumSigners(stranger, 1)
	assert.ErrorIs(t, err, interfaces.ErrUnauthorized)
}

func TestEngine_SignCertificateErrors(t *testing.T) {
	e := newTestEngine(t, governance.IdempotentSigners)
	_, err := e.AddSigner(owner, signer1)
	require.NoError(t, err)
	_, err = e.SetMinimumSigners(owner, 2)
	require.NoError(t, err)

	id, _, err := e.CreateCertificate(stranger, []byte("data"))
	require.NoError(t, err)

	_, _, err = e.SignCertificate(stranger, id)
	assert.ErrorIs(t, err, interfaces.ErrUnauthorized)

	_, _, err = e.SignCertificate(owner, id)
	assert.ErrorIs(t, err, interfaces.ErrUnauthorized, "owner is not implicitly a signer")

	_, _, err = e.SignCertificate(signer1, uuid.New())
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	_, _, err = e.SignCertificate(signer1, id)
	require.NoError(t, err)
	before := e.Stats().LastSeq

	cert, receipt, err := e.SignCertificate(signer1, id)
	assert.ErrorIs(t, err, interfaces.ErrAlreadySigned)
	assert.Nil(t, receipt)
	assert.Equal(t, interfaces.Certificate{}, cert)

	stored, err := e.GetCertificate(id)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.ApprovalCount())
	assert.Equal(t, before, e.Stats().LastSeq)
}

func TestEngine_CreateCertificateRejectsZeroCreator(t *testing.T) {
	e := newTestEngine(t, governance.IdempotentSigners)

	_, _, err := e.CreateCertificate(interfaces.ZeroIdentity, []byte("data"))
	assert.ErrorIs(t, err, interfaces.ErrInvalidArgument)
	assert.Empty(t, e.GetUnsignedCertificates())
}

func TestEngine_ThresholdOneApprovesOnFirstSignature(t *testing.T) {
	e := newTestEngine(t, governance.IdempotentSigners)
	_, err := e.AddSigner(owner, signer1)
	require.NoError(t, err)

	id, _, err := e.CreateCertificate(signer1, []byte("data"))
	require.NoError(t, err)

	cert, receipt, err := e.SignCertificate(signer1, id)
	require.NoError(t, err)
	assert.True(t, cert.IsApproved())
	assert.True(t, receipt.Has(interfaces.CertificateApproved))
}

func TestEngine_ApprovedNotificationEmittedOnce(t *testing.T) {
	e := newTestEngine(t, governance.IdempotentSigners)
	for _, s := range []interfaces.Identity{signer1, signer2, signer3} {
		_, err := e.AddSigner(owner, s)
		require.NoError(t, err)
	}
	_, err := e.SetMinimumSigners(owner, 2)
	require.NoError(t, err)

	id, _, err := e.CreateCertificate(stranger, []byte("data"))
	require.NoError(t, err)

	approvedCount := 0
	for _, s := range []interfaces.Identity{signer1, signer2, signer3} {
		cert, receipt, err := e.SignCertificate(s, id)
		require.NoError(t, err)
		assert.True(t, receipt.Has(interfaces.CertificateSigned))
		if receipt.Has(interfaces.CertificateApproved) {
			approvedCount++
		}
		if cert.ApprovalCount() >= 2 {
			assert.True(t, cert.IsApproved())
		}
	}
	assert.Equal(t, 1, approvedCount)

	cert, err := e.GetCertificate(id)
	require.NoError(t, err)
	assert.Equal(t, 3, cert.ApprovalCount())
	assert.Equal(t, interfaces.StatusApproved, cert.Status)
}

func TestEngine_RemovedSignerApprovalStillCounts(t *testing.T) {
	e := newTestEngine(t, governance.IdempotentSigners)
	_, err := e.AddSigner(owner, signer1)
	require.NoError(t, err)
	_, err = e.AddSigner(owner, signer2)
	require.NoError(t, err)
	_, err = e.SetMinimumSigners(owner, 2)
	require.NoError(t, err)

	id, _, err := e.CreateCertificate(stranger, []byte("data"))
	require.NoError(t, err)
	_, _, err = e.SignCertificate(signer1, id)
	require.NoError(t, err)

	receipt, err := e.RemoveSigner(owner, signer1)
	require.NoError(t, err)
	assert.True(t, receipt.Has(interfaces.SignerRemoved))
	assert.False(t, e.IsSigner(signer1))

	_, _, err = e.SignCertificate(signer1, uuid.New())
	assert.ErrorIs(t, err, interfaces.ErrUnauthorized)

	cert, receipt, err := e.SignCertificate(signer2, id)
	require.NoError(t, err)
	assert.Equal(t, interfaces.StatusApproved, cert.Status)
	assert.True(t, receipt.Has(interfaces.CertificateApproved))
}

func TestEngine_RemoveSignerErrors(t *testing.T) {
	e := newTestEngine(t, governance.IdempotentSigners)

	_, err := e.RemoveSigner(owner, signer1)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	_, err = e.AddSigner(owner, signer1)
	require.NoError(t, err)
	_, err = e.RemoveSigner(stranger, signer1)
	assert.ErrorIs(t, err, interfaces.ErrUnauthorized)
	assert.True(t, e.IsSigner(signer1))
}

func TestEngine_ThresholdSnapshotAtCreation(t *testing.T) {
	e := newTestEngine(t, governance.IdempotentSigners)
	_, err := e.AddSigner(owner, signer1)
	require.NoError(t, err)
	_, err = e.AddSigner(owner, signer2)
	require.NoError(t, err)
	_, err = e.SetMinimumSigners(owner, 2)
	require.NoError(t, err)

	id, _, err := e.CreateCertificate(stranger, []byte("data"))
	require.NoError(t, err)

	_, err = e.SetMinimumSigners(owner, 1)
	require.NoError(t, err)

	cert, err := e.GetCertificate(id)
	require.NoError(t, err)
	assert.Equal(t, 2, cert.RequiredSignatures)
	assert.Equal(t, interfaces.StatusPending, cert.Status)

	cert, receipt, err := e.SignCertificate(signer1, id)
	require.NoError(t, err)
	assert.Equal(t, 1, cert.RequiredSignatures)
	assert.Equal(t, interfaces.StatusApproved, cert.Status)
	assert.True(t, receipt.Has(interfaces.CertificateApproved))
}

func TestEngine_GetCertificateReturnsCopy(t *testing.T) {
	e := newTestEngine(t, governance.IdempotentSigners)

	id, _, err := e.CreateCertificate(stranger, []byte("data"))
	require.NoError(t, err)

	cert, err := e.GetCertificate(id)
	require.NoError(t, err)
	cert.Payload[0] = 'X'
	cert.Approvals = append(cert.Approvals, signer1)

	again, err := e.GetCertificate(id)
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), again.Payload)
	assert.Empty(t, again.Approvals)
}

func TestEngine_NotificationLog(t *testing.T) {
	e := newTestEngine(t, governance.IdempotentSigners)
	assert.Empty(t, e.NotificationsAfter(0))

	changed := e.Changed()
	select {
	case <-changed:
		t.Fatal("changed closed before any mutation")
	default:
	}

	_, err := e.AddSigner(owner, signer1)
	require.NoError(t, err)

	select {
	case <-changed:
	case <-time.After(time.Second):
		t.Fatal("changed not closed after mutation")
	}

	id, _, err := e.CreateCertificate(stranger, []byte("payload"))
	require.NoError(t, err)
	_, _, err = e.SignCertificate(signer1, id)
	require.NoError(t, err)

	all := e.NotificationsAfter(0)
	require.Len(t, all, 4)
	for i, n := range all {
		assert.Equal(t, uint64(i+1), n.Seq)
	}
	assert.Equal(t, interfaces.SignerAdded, all[0].Kind)
	assert.Equal(t, signer1, *all[0].Signer)
	assert.Equal(t, interfaces.CertificateCreated, all[1].Kind)
	assert.Equal(t, id, *all[1].CertificateID)
	assert.Equal(t, stranger, *all[1].Creator)
	assert.Equal(t, []byte("payload"), all[1].Payload)
	assert.Equal(t, interfaces.CertificateSigned, all[2].Kind)
	assert.Equal(t, interfaces.CertificateApproved, all[3].Kind)

	tail := e.NotificationsAfter(2)
	require.Len(t, tail, 2)
	assert.Equal(t, uint64(3), tail[0].Seq)
	assert.Empty(t, e.NotificationsAfter(4))
	assert.Empty(t, e.NotificationsAfter(100))

	all[1].Payload[0] = 'X'
	assert.Equal(t, []byte("payload"), e.NotificationsAfter(1)[0].Payload)
}

func TestEngine_ReceiptMatchesLog(t *testing.T) {
	e := newTestEngine(t, governance.IdempotentSigners)

	receipt, err := e.SetMinimumSigners(owner, 3)
	require.NoError(t, err)
	require.Len(t, receipt.Notifications, 1)
	assert.Equal(t, uint64(1), receipt.Notifications[0].Seq)
	assert.Equal(t, 3, receipt.Notifications[0].MinimumSigners)
	assert.Equal(t, receipt.Notifications, e.NotificationsAfter(0))
	assert.Equal(t, uint64(1), e.LastSeq())
}

func TestEngine_Stats(t *testing.T) {
	e := newTestEngine(t, governance.IdempotentSigners)
	_, err := e.AddSigner(owner, signer1)
	require.NoError(t, err)
	_, err = e.SetMinimumSigners(owner, 2)
	require.NoError(t, err)

	stats := e.Stats()
	assert.False(t, stats.QuorumReachable)

	_, err = e.AddSigner(owner, signer2)
	require.NoError(t, err)
	id, _, err := e.CreateCertificate(stranger, []byte("a"))
	require.NoError(t, err)
	_, _, err = e.CreateCertificate(stranger, []byte("b"))
	require.NoError(t, err)
	_, _, err = e.SignCertificate(signer1, id)
	require.NoError(t, err)
	_, _, err = e.SignCertificate(signer2, id)
	require.NoError(t, err)

	assert.Equal(t, Stats{
		SignersCount:         2,
		MinimumSigners:       2,
		QuorumReachable:      true,
		PendingCertificates:  1,
		ApprovedCertificates: 1,
		LastSeq:              8,
	}, e.Stats())
}

func TestEngine_ConcurrentSigning(t *testing.T) {
	e := newTestEngine(t, governance.IdempotentSigners)

	signers := make([]interfaces.Identity, 16)
	for i := range signers {
		signers[i] = interfaces.Identity{18: 0x20, 19: byte(i)}
		_, err := e.AddSigner(owner, signers[i])
		require.NoError(t, err)
	}
	_, err := e.SetMinimumSigners(owner, 8)
	require.NoError(t, err)

	id, _, err := e.CreateCertificate(stranger, []byte("concurrent"))
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		approved int
	)
	for _, s := range signers {
		for range 2 {
			wg.Add(1)
			go func(s interfaces.Identity) {
				defer wg.Done()
				_, receipt, err := e.SignCertificate(s, id)
				if err != nil {
					assert.ErrorIs(t, err, interfaces.ErrAlreadySigned)
					return
				}
				if receipt.Has(interfaces.CertificateApproved) {
					mu.Lock()
					approved++
					mu.Unlock()
				}
			}(s)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			cert, err := e.GetCertificate(id)
			assert.NoError(t, err)
			assert.Equal(t, cert.ApprovalCount() >= 8, cert.IsApproved())
		}()
	}
	wg.Wait()

	cert, err := e.GetCertificate(id)
	require.NoError(t, err)
	assert.Equal(t, len(signers), cert.ApprovalCount())
	assert.Equal(t, 1, approved)
	assert.Empty(t, e.GetUnsignedCertificates())
}

func TestEngine_SignerSetIsSingleRead(t *testing.T) {
	e := newTestEngine(t, governance.IdempotentSigners)
	signer4 := interfaces.Identity{19: 0x14}
	for _, s := range []interfaces.Identity{signer1, signer2} {
		_, err := e.AddSigner(owner, s)
		require.NoError(t, err)
	}
	_, err := e.SetMinimumSigners(owner, 2)
	require.NoError(t, err)

	// Every committed state keeps the quorum reachable; only a read mixing
	// two states can see fewer signers than the threshold.
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_, err := e.AddSigner(owner, signer3)
			assert.NoError(t, err)
			_, err = e.AddSigner(owner, signer4)
			assert.NoError(t, err)
			_, err = e.SetMinimumSigners(owner, 4)
			assert.NoError(t, err)
			_, err = e.SetMinimumSigners(owner, 2)
			assert.NoError(t, err)
			_, err = e.RemoveSigner(owner, signer3)
			assert.NoError(t, err)
			_, err = e.RemoveSigner(owner, signer4)
			assert.NoError(t, err)
		}
		close(done)
	}()

	for {
		select {
		case <-done:
			wg.Wait()
			assert.Equal(t, interfaces.SignerSet{
				Signers:         []interfaces.Identity{signer1, signer2},
				MinimumSigners:  2,
				QuorumReachable: true,
			}, e.SignerSet())
			return
		default:
		}
		set := e.SignerSet()
		if !assert.True(t, set.QuorumReachable, "signers=%d minimum=%d", len(set.Signers), set.MinimumSigners) {
			wg.Wait()
			return
		}
		assert.GreaterOrEqual(t, len(set.Signers), set.MinimumSigners)
	}
}

func TestEngine_ApprovedKeepsItsThreshold(t *testing.T) {
	e := newTestEngine(t, governance.IdempotentSigners)
	for _, s := range []interfaces.Identity{signer1, signer2, signer3} {
		_, err := e.AddSigner(owner, s)
		require.NoError(t, err)
	}
	_, err := e.SetMinimumSigners(owner, 2)
	require.NoError(t, err)

	id, _, err := e.CreateCertificate(stranger, []byte("data"))
	require.NoError(t, err)
	for _, s := range []interfaces.Identity{signer1, signer2} {
		_, _, err := e.SignCertificate(s, id)
		require.NoError(t, err)
	}

	_, err = e.SetMinimumSigners(owner, 5)
	require.NoError(t, err)

	cert, receipt, err := e.SignCertificate(signer3, id)
	require.NoError(t, err)
	assert.Equal(t, []interfaces.NotificationKind{interfaces.CertificateSigned}, kinds(receipt))

	cert, err = e.GetCertificate(id)
	require.NoError(t, err)
	assert.Equal(t, 3, cert.ApprovalCount())
	assert.Equal(t, 2, cert.RequiredSignatures)
	assert.Equal(t, interfaces.StatusApproved, cert.Status)
}
