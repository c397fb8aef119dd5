// devicectl is a minimal device-side client for the framekeeper HTTP API,
// useful for manual testing and scripting: pairing, polling, package
// retrieval, resource fetch and revocation.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/dmitrijs2005/framekeeper/internal/common"
)

const usage = `usage: devicectl <command> [flags]

commands:
  pair         request a pairing code
  status       poll a pairing session
  package      retrieve the resource package (expires the session)
  fetch        download one resource
  initial      run the album-change check
  update-poll  poll an update session
  revoke       revoke a resource key
`

type client struct {
	server string
	http   *http.Client
}

func (c *client) postJSON(path string, body any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Post(c.server+path, "application/json", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}
	return data, nil
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cmd := os.Args[1]
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	server := fs.String("server", "http://127.0.0.1:8080", "server base URL")
	device := fs.String("device", "", "device ID")
	session := fs.String("session", "", "session ID")
	code := fs.String("code", "", "pairing code")
	resource := fs.String("resource", "", "resource ID")
	key := fs.String("key", "", "access key")
	album := fs.String("album", "", "album handle override")
	width := fs.Int("width", 1920, "screen width")
	height := fs.Int("height", 1080, "screen height")
	out := fs.String("out", "", "output file for fetched bytes (default stdout)")
	_ = fs.Parse(os.Args[2:])

	c := &client{server: *server, http: &http.Client{Timeout: 30 * time.Second}}

	var err error
	switch cmd {
	case "pair":
		err = runPair(c, *device, *width, *height)
	case "status":
		err = runStatus(c, *session, *device, *code)
	case "package":
		err = runPackage(c, *session, *device, *code)
	case "fetch":
		err = runFetch(c, *resource, *key, *device, *out)
	case "initial":
		err = runInitial(c, *resource, *key, *device, *album, *width, *height)
	case "update-poll":
		err = runUpdatePoll(c, *session, *device, *key)
	case "revoke":
		err = runRevoke(c, *device, *resource, *key)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%v", err)
	}
}

func runPair(c *client, device string, width, height int) error {
	data, err := c.postJSON("/pair", map[string]any{
		"deviceId": device, "screenWidth": width, "screenHeight": height,
	})
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runStatus(c *client, session, device, code string) error {
	data, err := c.postJSON("/status", map[string]string{
		"sessionId": session, "deviceId": device, "pairingCode": code,
	})
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runPackage(c *client, session, device, code string) error {
	data, err := c.postJSON("/package", map[string]string{
		"sessionId": session, "deviceId": device, "pairingCode": code,
	})
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runFetch(c *client, resource, key, device, out string) error {
	req, err := http.NewRequest(http.MethodGet, c.server+"/resource", nil)
	if err != nil {
		return err
	}
	req.Header.Set(common.AccessKeyHeaderName, key)
	req.Header.Set(common.ResourceIDHeaderName, resource)
	req.Header.Set(common.DeviceIDHeaderName, device)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	switch resp.StatusCode {
	case http.StatusOK:
		if out == "" {
			_, err = os.Stdout.Write(data)
			return err
		}
		return os.WriteFile(out, data, 0o600)
	case http.StatusAccepted:
		// Rotation due: the server handed out a fresh key instead of bytes.
		fmt.Println(string(data))
		return nil
	default:
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}
}

func runInitial(c *client, resource, key, device, album string, width, height int) error {
	req, err := http.NewRequest(http.MethodGet, c.server+"/initial", nil)
	if err != nil {
		return err
	}
	req.Header.Set(common.AccessKeyHeaderName, key)
	req.Header.Set(common.ResourceIDHeaderName, resource)
	req.Header.Set(common.DeviceIDHeaderName, device)
	req.Header.Set(common.ScreenWidthHeader, fmt.Sprint(width))
	req.Header.Set(common.ScreenHeightHeader, fmt.Sprint(height))
	if album != "" {
		req.Header.Set(common.AlbumHandleHeader, album)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}
	if len(bytes.TrimSpace(data)) == 0 {
		fmt.Println("no change")
		return nil
	}
	fmt.Println(string(data))
	return nil
}

func runUpdatePoll(c *client, session, device, key string) error {
	data, err := c.postJSON("/update-poll", map[string]string{
		"updateSessionId": session, "deviceId": device, "accessKey": key,
	})
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runRevoke(c *client, device, resource, key string) error {
	data, err := c.postJSON("/revoke", map[string]any{
		"deviceId": device,
		"links":    map[string]string{resource: key},
	})
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
