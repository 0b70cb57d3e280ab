/*
Command manager_client talks to a certificate manager server.

Mutating subcommands sign the request with the caller key, given either as a
hex private key (--privkey or MANAGER_PRIVKEY) or as an encrypted key file:

	manager_client generate-key --out signer.json --passphrase secret
	manager_client --keyfile signer.json --passphrase secret create-certificate "payload"
	manager_client --privkey $OWNER_KEY add-signer 0x2B5AD5c4795c026514f8317c7a215E218DcCD6cF
	manager_client get-certificate 5f0c1a9e-3b7d-4c58-9d7e-0e4f6b2a1c33

The scenario subcommand exercises the whole approval flow against a running
server and logs PASSED or FAILED for each step. It leaves the server owned by
a throwaway key.
*/
package main
