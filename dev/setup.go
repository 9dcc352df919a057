package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	devenv "trbowatch/dev/env"
	"trbowatch/internal/history"
	configlibsql "trbowatch/lib/configutil/libsql"
)

const callwatchTemplate = `{
  // public CallWatch page, defaults to the production server when empty
  callwatch_url: "",
  // backend login, TestLive/backend is skipped while these are empty
  base_url: "",
  username: "",
  password: "",
  // "chrome" or "http"
  driver: "http",
}
`

func CreateHistoryDB() error {
	path, err := devenv.GetStateFilePath("trbowatch.db")
	if err != nil {
		return err
	}

	_, err = os.Stat(path)
	if err == nil {
		fmt.Println("database already created at", path)
		return nil
	}

	fmt.Println("creating database at", path)
	db, err := configlibsql.Struct{File: path}.OpenDB()
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = history.Open(context.Background(), db)
	return err
}

func CreateTestConfig() error {
	path, err := devenv.GetStateFilePath("callwatch.json5")
	if err != nil {
		return err
	}

	_, err = os.Stat(path)
	if err == nil {
		fmt.Println("test config already exists at", path)
		return nil
	}

	fmt.Println("writing test config template to", path)
	return os.WriteFile(path, []byte(callwatchTemplate), 0600)
}

func PrintConfigLocations() {
	slog.Info("the live tests read dev/.state/callwatch.json5, fill in the backend credentials there to run them with `go test -v ./internal/scrapers/callwatch`.")
}
