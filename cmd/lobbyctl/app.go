package main

import (
	"fmt"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/TheMeowgician/fitnease-lobby/internal/api"
	"github.com/TheMeowgician/fitnease-lobby/internal/session"
)

// app bundles the always-needed collaborators: the API client, the persisted
// session context, and identity.
type app struct {
	api      *api.Client
	sess     *session.Context
	userID   string
	userName string
	log      *zap.Logger
}

func newApp() (*app, error) {
	userID := viper.GetString("user-id")
	if userID == "" {
		return nil, fmt.Errorf("--user-id (or FITNEASE_USER_ID) is required")
	}
	userName := viper.GetString("user-name")
	if userName == "" {
		userName = userID
	}

	log := newLogger()

	path := viper.GetString("session-file")
	if path == "" {
		var err error
		path, err = session.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	sess, err := session.NewContext(path, log)
	if err != nil {
		return nil, err
	}

	return &app{
		api:      api.NewClient(viper.GetString("api-url"), viper.GetString("token"), log),
		sess:     sess,
		userID:   userID,
		userName: userName,
		log:      log,
	}, nil
}
