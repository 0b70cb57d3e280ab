// Package engine implements the approval engine of the certificate manager.
//
// An Engine combines governance.AccessControl, governance.SignerRegistry and
// certstore.Store and serializes all operations on them behind one lock.
// Every accepted mutation returns a receipt with the notifications it emitted;
// the same notifications are appended to a sequence-numbered log that
// observers poll with NotificationsAfter and wait on with Changed.
//
// Certificates are created Pending with the current threshold and become
// Approved once that many distinct registered signers have signed:
//
//	e, _ := engine.New(&engine.Config{Owner: owner})
//	e.AddSigner(owner, s1)
//	e.AddSigner(owner, s2)
//	e.SetMinimumSigners(owner, 2)
//	id, _, _ := e.CreateCertificate(anyone, payload)
//	e.SignCertificate(s2, id)
//	cert, receipt, _ := e.SignCertificate(s1, id) // cert.Status == Approved
package engine
