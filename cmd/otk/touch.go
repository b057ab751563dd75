package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/urfave/cli/v2"
)

var (
	fingerFlag = &cli.StringFlag{
		Name:  "finger",
		Usage: "the name of the finger placed on the sensor",
		Value: "thumb",
	}
	holdFlag = &cli.DurationFlag{
		Name:  "hold",
		Usage: "release the finger after the given duration, ie. 4s",
	}
)

var touch = cli.Command{
	Name:   "touch",
	Usage:  "place a finger on the simulated fingerprint sensor",
	Flags:  []cli.Flag{fingerFlag, holdFlag},
	Action: touchAction,
}

var release = cli.Command{
	Name:   "release",
	Usage:  "lift the finger from the simulated fingerprint sensor",
	Action: releaseAction,
}

var sensor = cli.Command{
	Name:   "sensor",
	Usage:  "show the status of the simulated fingerprint sensor",
	Action: sensorAction,
}

var httpClient = &http.Client{Timeout: 10 * time.Second}

func touchAction(ctx *cli.Context) error {
	query := url.Values{}
	query.Set("finger", ctx.String(fingerFlag.Name))
	if hold := ctx.Duration(holdFlag.Name); hold > 0 {
		query.Set("hold", hold.String())
	}
	return post(ctx.String(fpsURLFlag.Name) + "/touch?" + query.Encode())
}

func releaseAction(ctx *cli.Context) error {
	return post(ctx.String(fpsURLFlag.Name) + "/release")
}

func sensorAction(ctx *cli.Context) error {
	resp, err := httpClient.Get(ctx.String(fpsURLFlag.Name) + "/status")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	status := map[string]interface{}{}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return err
	}
	printJSON(status)
	return nil
}

func post(url string) error {
	resp, err := httpClient.Post(url, "", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return statusError(resp)
	}
	return nil
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("%s: %s", resp.Status, body)
}
