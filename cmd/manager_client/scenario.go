package main

import (
	"bytes"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/ruteri/certificate-manager/api/clients"
	"github.com/ruteri/certificate-manager/cryptoutils"
	"github.com/ruteri/certificate-manager/interfaces"
)

const scenarioPayload = "Test Certificate Data"

type scenario struct {
	log    *slog.Logger
	failed int
}

// check logs the outcome of one step and returns whether it passed.
func (s *scenario) check(step string, err error) bool {
	if err != nil {
		s.failed++
		s.log.Error("FAILED", "step", step, "err", err)
		return false
	}
	s.log.Info("PASSED", "step", step)
	return true
}

func expect(cond bool, format string, args ...any) error {
	if cond {
		return nil
	}
	return fmt.Errorf(format, args...)
}

// runScenario registers two fresh signers, sets the threshold to two, has
// them approve a certificate and finally hands ownership to a fresh key.
func runScenario(serverAddr string, ownerKey *ecdsa.PrivateKey, log *slog.Logger) error {
	s := &scenario{log: log}

	keys := make([]*ecdsa.PrivateKey, 3)
	for i := range keys {
		key, err := cryptoutils.GenerateKey()
		if err != nil {
			return err
		}
		keys[i] = key
	}

	owner := clients.NewManagerClient(serverAddr, ownerKey)
	s1 := clients.NewManagerClient(serverAddr, keys[0])
	s2 := clients.NewManagerClient(serverAddr, keys[1])
	newOwner := cryptoutils.KeyIdentity(keys[2])

	log.Info("Running scenario", "server", serverAddr, "owner", owner.Identity().String(),
		"s1", s1.Identity().String(), "s2", s2.Identity().String(), "newOwner", newOwner.String())

	if !s.check("owner matches key", func() error {
		current, err := owner.Owner()
		if err != nil {
			return err
		}
		return expect(current == owner.Identity(), "server owner is %s", current)
	}()) {
		return errors.New("scenario requires the owner key")
	}

	before, err := owner.SignersCount()
	if err != nil {
		return err
	}

	s.check("register signers", func() error {
		for _, signer := range []interfaces.Identity{s1.Identity(), s2.Identity()} {
			if _, err := owner.AddSigner(signer); err != nil {
				return err
			}
		}
		count, err := owner.SignersCount()
		if err != nil {
			return err
		}
		return expect(count == before+2, "signers count %d, expected %d", count, before+2)
	}())

	s.check("set threshold", func() error {
		if _, err := owner.SetMinimumSigners(2); err != nil {
			return err
		}
		n, err := owner.MinimumSigners()
		if err != nil {
			return err
		}
		return expect(n == 2, "minimum signers %d", n)
	}())

	var id uuid.UUID
	if !s.check("create certificate", func() error {
		id, _, err = s1.CreateCertificate([]byte(scenarioPayload))
		if err != nil {
			return err
		}
		cert, err := s1.GetCertificate(id)
		if err != nil {
			return err
		}
		if err := expect(bytes.Equal(cert.Payload, []byte(scenarioPayload)), "payload %q", cert.Payload); err != nil {
			return err
		}
		return expect(cert.Status == interfaces.StatusPending && cert.ApprovalCount() == 0,
			"status %s with %d approvals", cert.Status, cert.ApprovalCount())
	}()) {
		return fmt.Errorf("%d scenario steps failed", s.failed)
	}

	s.check("first approval keeps certificate pending", func() error {
		cert, _, err := s2.SignCertificate(id)
		if err != nil {
			return err
		}
		if err := expect(cert.ApprovalCount() == 1 && cert.Status == interfaces.StatusPending,
			"status %s with %d approvals", cert.Status, cert.ApprovalCount()); err != nil {
			return err
		}
		unsigned, err := s2.UnsignedCertificates()
		if err != nil {
			return err
		}
		for _, c := range unsigned {
			if c.ID == id {
				return nil
			}
		}
		return fmt.Errorf("certificate %s missing from unsigned list", id)
	}())

	s.check("double signing is rejected", func() error {
		_, _, err := s2.SignCertificate(id)
		return expect(errors.Is(err, interfaces.ErrAlreadySigned), "expected already signed, got %v", err)
	}())

	s.check("second approval reaches quorum", func() error {
		cert, notifications, err := s1.SignCertificate(id)
		if err != nil {
			return err
		}
		if err := expect(cert.Status == interfaces.StatusApproved, "status %s", cert.Status); err != nil {
			return err
		}
		approvedEmitted := false
		for _, n := range notifications {
			if n.Kind == interfaces.CertificateApproved && n.CertificateID != nil && *n.CertificateID == id {
				approvedEmitted = true
			}
		}
		if err := expect(approvedEmitted, "no CertificateApproved notification"); err != nil {
			return err
		}
		unsigned, err := s1.UnsignedCertificates()
		if err != nil {
			return err
		}
		for _, c := range unsigned {
			if c.ID == id {
				return fmt.Errorf("approved certificate %s still listed as unsigned", id)
			}
		}
		return nil
	}())

	s.check("change owner", func() error {
		if _, err := owner.ChangeOwner(newOwner); err != nil {
			return err
		}
		current, err := owner.Owner()
		if err != nil {
			return err
		}
		return expect(current == newOwner, "owner is %s", current)
	}())

	if s.failed > 0 {
		return fmt.Errorf("%d scenario steps failed", s.failed)
	}
	log.Info("Scenario completed")
	return nil
}
