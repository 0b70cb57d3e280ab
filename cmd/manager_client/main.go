package main

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/ruteri/certificate-manager/api/clients"
	"github.com/ruteri/certificate-manager/cmd/flags"
	"github.com/ruteri/certificate-manager/cryptoutils"
	"github.com/ruteri/certificate-manager/interfaces"
	"github.com/urfave/cli/v2"
)

var flagPayloadFile = &cli.StringFlag{
	Name:  "payload-file",
	Usage: "read the certificate payload from a file instead of the first argument",
}

var flagOut = &cli.StringFlag{
	Name:  "out",
	Usage: "write the generated key to an encrypted key file protected by --passphrase",
}

func main() {
	app := &cli.App{
		Name:  "manager-client",
		Usage: "Talk to a certificate manager server",
		Flags: []cli.Flag{
			flags.ServerAddrFlag,
			flags.PrivKeyFlag,
			flags.KeyFileFlag,
			flags.PassphraseFlag,
			flags.LogJsonFlag,
			flags.LogDebugFlag,
			flags.LogServiceFlagFn("manager-client"),
		},
		Commands: []*cli.Command{
			{
				Name:  "generate-key",
				Usage: "generate a new secp256k1 key and print its address",
				Flags: []cli.Flag{flagOut},
				Action: func(cCtx *cli.Context) error {
					key, err := cryptoutils.GenerateKey()
					if err != nil {
						return err
					}

					out := map[string]string{"address": cryptoutils.KeyIdentity(key).String()}
					if path := cCtx.String(flagOut.Name); path != "" {
						if err := cryptoutils.SaveKeyFile(path, key, cCtx.String(flags.PassphraseFlag.Name)); err != nil {
							return err
						}
						out["keyfile"] = path
					} else {
						out["privkey"] = cryptoutils.PrivateKeyHex(key)
					}
					return printJSON(out)
				},
			},
			{
				Name:  "address",
				Usage: "print the address of the configured key",
				Action: func(cCtx *cli.Context) error {
					key, err := flags.LoadPrivateKey(cCtx)
					if err != nil {
						return err
					}
					return printJSON(map[string]string{"address": cryptoutils.KeyIdentity(key).String()})
				},
			},
			{
				Name:  "owner",
				Usage: "print the current owner",
				Action: withClient(func(cCtx *cli.Context, c *clients.ManagerClient) error {
					owner, err := c.Owner()
					if err != nil {
						return err
					}
					return printJSON(map[string]string{"owner": owner.String()})
				}),
			},
			{
				Name:      "change-owner",
				Usage:     "transfer ownership (owner only)",
				ArgsUsage: "<new-owner-address>",
				Action: withClient(func(cCtx *cli.Context, c *clients.ManagerClient) error {
					newOwner, err := identityArg(cCtx)
					if err != nil {
						return err
					}
					return printReceipt(c.ChangeOwner(newOwner))
				}),
			},
			{
				Name:      "add-signer",
				Usage:     "register a signer (owner only)",
				ArgsUsage: "<signer-address>",
				Action: withClient(func(cCtx *cli.Context, c *clients.ManagerClient) error {
					signer, err := identityArg(cCtx)
					if err != nil {
						return err
					}
					return printReceipt(c.AddSigner(signer))
				}),
			},
			{
				Name:      "remove-signer",
				Usage:     "deregister a signer (owner only)",
				ArgsUsage: "<signer-address>",
				Action: withClient(func(cCtx *cli.Context, c *clients.ManagerClient) error {
					signer, err := identityArg(cCtx)
					if err != nil {
						return err
					}
					return printReceipt(c.RemoveSigner(signer))
				}),
			},
			{
				Name:      "set-minimum-signers",
				Usage:     "set the approval threshold (owner only)",
				ArgsUsage: "<n>",
				Action: withClient(func(cCtx *cli.Context, c *clients.ManagerClient) error {
					n, err := strconv.Atoi(cCtx.Args().First())
					if err != nil {
						return fmt.Errorf("invalid threshold %q: %w", cCtx.Args().First(), err)
					}
					return printReceipt(c.SetMinimumSigners(n))
				}),
			},
			{
				Name:  "signers",
				Usage: "list registered signers",
				Action: withClient(func(cCtx *cli.Context, c *clients.ManagerClient) error {
					resp, err := c.Signers()
					if err != nil {
						return err
					}
					return printJSON(resp)
				}),
			},
			{
				Name:  "signers-count",
				Usage: "print the number of registered signers",
				Action: withClient(func(cCtx *cli.Context, c *clients.ManagerClient) error {
					n, err := c.SignersCount()
					if err != nil {
						return err
					}
					return printJSON(map[string]int{"count": n})
				}),
			},
			{
				Name:  "minimum-signers",
				Usage: "print the approval threshold",
				Action: withClient(func(cCtx *cli.Context, c *clients.ManagerClient) error {
					n, err := c.MinimumSigners()
					if err != nil {
						return err
					}
					return printJSON(map[string]int{"minimum_signers": n})
				}),
			},
			{
				Name:      "create-certificate",
				Usage:     "submit a payload for approval",
				ArgsUsage: "<payload>",
				Flags:     []cli.Flag{flagPayloadFile},
				Action: withClient(func(cCtx *cli.Context, c *clients.ManagerClient) error {
					payload := []byte(cCtx.Args().First())
					if path := cCtx.String(flagPayloadFile.Name); path != "" {
						data, err := os.ReadFile(path)
						if err != nil {
							return err
						}
						payload = data
					}

					id, notifications, err := c.CreateCertificate(payload)
					if err != nil {
						return err
					}
					return printJSON(map[string]any{"id": id, "notifications": notifications})
				}),
			},
			{
				Name:      "sign-certificate",
				Usage:     "approve a certificate (signers only)",
				ArgsUsage: "<certificate-id>",
				Action: withClient(func(cCtx *cli.Context, c *clients.ManagerClient) error {
					id, err := uuid.Parse(cCtx.Args().First())
					if err != nil {
						return fmt.Errorf("invalid certificate id: %w", err)
					}
					cert, notifications, err := c.SignCertificate(id)
					if err != nil {
						return err
					}
					return printJSON(map[string]any{"certificate": cert, "notifications": notifications})
				}),
			},
			{
				Name:      "get-certificate",
				Usage:     "print a certificate",
				ArgsUsage: "<certificate-id>",
				Action: withClient(func(cCtx *cli.Context, c *clients.ManagerClient) error {
					id, err := uuid.Parse(cCtx.Args().First())
					if err != nil {
						return fmt.Errorf("invalid certificate id: %w", err)
					}
					cert, err := c.GetCertificate(id)
					if err != nil {
						return err
					}
					return printJSON(cert)
				}),
			},
			{
				Name:  "unsigned-certificates",
				Usage: "list certificates still awaiting approval",
				Action: withClient(func(cCtx *cli.Context, c *clients.ManagerClient) error {
					certs, err := c.UnsignedCertificates()
					if err != nil {
						return err
					}
					return printJSON(certs)
				}),
			},
			{
				Name:      "notifications",
				Usage:     "print notifications with a sequence number above <after>",
				ArgsUsage: "[after]",
				Action: withClient(func(cCtx *cli.Context, c *clients.ManagerClient) error {
					var after uint64
					if cCtx.Args().Present() {
						var err error
						after, err = strconv.ParseUint(cCtx.Args().First(), 10, 64)
						if err != nil {
							return fmt.Errorf("invalid sequence number: %w", err)
						}
					}
					notifications, err := c.NotificationsAfter(after)
					if err != nil {
						return err
					}
					return printJSON(notifications)
				}),
			},
			{
				Name:  "scenario",
				Usage: "run the end-to-end approval scenario against the server; the configured key must be the owner",
				Action: func(cCtx *cli.Context) error {
					key, err := flags.LoadPrivateKey(cCtx)
					if err != nil {
						return err
					}
					return runScenario(cCtx.String(flags.ServerAddrFlag.Name), key, flags.SetupLogger(cCtx))
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// withClient builds a client from the global flags. Without a configured key
// the client can only issue read requests.
func withClient(action func(*cli.Context, *clients.ManagerClient) error) cli.ActionFunc {
	return func(cCtx *cli.Context) error {
		var key *ecdsa.PrivateKey
		if cCtx.IsSet(flags.PrivKeyFlag.Name) || cCtx.IsSet(flags.KeyFileFlag.Name) {
			var err error
			if key, err = flags.LoadPrivateKey(cCtx); err != nil {
				return err
			}
		}
		return action(cCtx, clients.NewManagerClient(cCtx.String(flags.ServerAddrFlag.Name), key))
	}
}

func identityArg(cCtx *cli.Context) (interfaces.Identity, error) {
	if !cCtx.Args().Present() {
		return interfaces.Identity{}, fmt.Errorf("missing address argument")
	}
	id, err := interfaces.NewIdentityFromHex(cCtx.Args().First())
	if err != nil {
		return interfaces.Identity{}, fmt.Errorf("invalid address %q: %w", cCtx.Args().First(), err)
	}
	return id, nil
}

func printReceipt(notifications []interfaces.Notification, err error) error {
	if err != nil {
		return err
	}
	return printJSON(map[string]any{"notifications": notifications})
}

func printJSON(v any) error {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}
