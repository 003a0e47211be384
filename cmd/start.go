package cmd

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"os/signal"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/leftmike/anchor/server"
)

var (
	startCmd = &cobra.Command{
		Use:   "start",
		Short: "Start serving console sessions over SSH",
		Args:  cobra.NoArgs,
		RunE:  startRun,
	}

	sshPort        = "localhost:8241"
	authorizedKeys = ""
	hostKeys       = []string{"id_rsa"}
)

func init() {
	fs := startCmd.Flags()

	fs.StringVar(&sshPort, "ssh-port", sshPort, "`port` used to serve SSH")
	cfgVars["ssh-port"] = fs.Lookup("ssh-port")

	fs.StringVar(&authorizedKeys, "ssh-authorized-keys", authorizedKeys,
		"`file` containing authorized ssh keys")
	cfgVars["ssh-authorized-keys"] = fs.Lookup("ssh-authorized-keys")

	fs.StringSliceVar(&hostKeys, "ssh-host-key", hostKeys,
		"`file` containing a ssh host key; multiple allowed")
	cfgVars["ssh-host-key"] = fs.Lookup("ssh-host-key")

	cfgVars["accounts"] = nil

	anchorCmd.AddCommand(startCmd)
}

// userAccounts returns the user and password of each entry in the accounts config variable:
//
//	accounts = [
//	    { user = "name", password = "secret" },
//	]
func userAccounts() (map[string]string, error) {
	val := cfg["accounts"]
	if val == nil {
		return nil, nil
	}

	var accounts []map[string]interface{}
	switch val := val.(type) {
	case []map[string]interface{}:
		accounts = val
	case []interface{}:
		for _, obj := range val {
			account, ok := obj.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("accounts: expected user and password; got %v", obj)
			}
			accounts = append(accounts, account)
		}
	default:
		return nil, fmt.Errorf("accounts: expected a list; got %v", val)
	}

	userPasswords := map[string]string{}
	for _, account := range accounts {
		user, ok := account["user"].(string)
		if !ok {
			return nil, fmt.Errorf("accounts: missing user: %v", account)
		}
		password, ok := account["password"].(string)
		if !ok {
			return nil, fmt.Errorf("accounts: missing password for %s", user)
		}
		userPasswords[user] = password
	}

	return userPasswords, nil
}

func sshConfig() (server.SSHConfig, error) {
	sshCfg := server.SSHConfig{
		Address: sshPort,
	}

	for _, hostKey := range hostKeys {
		keyBytes, err := ioutil.ReadFile(hostKey)
		if err != nil {
			return sshCfg, fmt.Errorf("anchor: host keys: %s", err)
		}
		sshCfg.HostKeysBytes = append(sshCfg.HostKeysBytes, keyBytes)
	}

	if authorizedKeys != "" {
		var err error
		sshCfg.AuthorizedBytes, err = ioutil.ReadFile(authorizedKeys)
		if err != nil {
			return sshCfg, fmt.Errorf("anchor: authorized keys: %s", err)
		}
	}

	userPasswords, err := userAccounts()
	if err != nil {
		return sshCfg, fmt.Errorf("anchor: %s", err)
	}
	if len(userPasswords) > 0 {
		sshCfg.CheckPassword = func(user, password string) error {
			pw, ok := userPasswords[user]
			if !ok {
				return fmt.Errorf("user %s not found", user)
			}
			if password != pw {
				return fmt.Errorf("bad password for user %s", user)
			}
			return nil
		}
	}

	return sshCfg, nil
}

func startRun(cmd *cobra.Command, args []string) error {
	sshCfg, err := sshConfig()
	if err != nil {
		return err
	}

	env, err := openEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	svr := &server.Server{
		Env: env,
	}

	go func() {
		err := svr.ListenAndServeSSH(sshCfg)
		if err != server.ErrServerClosed {
			log.WithField("error", err.Error()).Error("ssh server")
			fmt.Fprintf(os.Stderr, "anchor: %s\n", err)
		}
	}()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)

	fmt.Printf("anchor: serving ssh on %s; waiting for ^C to shutdown\n", sshPort)
	<-ch
	go func() {
		<-ch
		os.Exit(0)
	}()

	fmt.Println("anchor: shutting down")
	svr.Shutdown(context.Background())
	return svr.Close()
}
