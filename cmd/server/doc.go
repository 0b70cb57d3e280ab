/*
Command server runs the certificate manager.

It serves the HTTP API, exports Prometheus metrics and optionally archives
the notification log and approved certificates to one or more storage
backends.

	server --genesis genesis.yaml --listen-addr 0.0.0.0:8080 \
	    --archive-backend file:///var/lib/certificate-manager \
	    --archive-backend s3://archive-bucket/certs?region=eu-west-1

Without a genesis file the engine starts with only an owner:

	server --owner 0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf
*/
package main
