// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package report

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/c2FmZQ/storage"
	"github.com/c2FmZQ/storage/crypto"
)

// MasterKeyEnv holds the passphrase that protects the master key.
const MasterKeyEnv = "UICHECK_MASTER_KEY"

// OpenStorage opens the report storage, encrypted when UICHECK_MASTER_KEY
// is set.
func OpenStorage(dataDir string) (*storage.Storage, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	keyFile := filepath.Join(dataDir, "master.key")
	var masterKey crypto.MasterKey
	if passphrase := os.Getenv(MasterKeyEnv); passphrase != "" {
		var err error
		masterKey, err = crypto.ReadMasterKey([]byte(passphrase), keyFile)
		switch {
		case os.IsNotExist(err):
			log.Println("Initializing new master encryption key...")
			if masterKey, err = crypto.CreateMasterKey(); err != nil {
				return nil, fmt.Errorf("failed to create master key: %w", err)
			}
			if err := masterKey.Save([]byte(passphrase), keyFile); err != nil {
				return nil, fmt.Errorf("failed to save master key: %w", err)
			}
		case err != nil:
			return nil, fmt.Errorf("failed to read master key: %w", err)
		default:
			log.Println("Loaded master encryption key.")
		}
	} else {
		if _, err := os.Stat(keyFile); err == nil {
			return nil, fmt.Errorf("%s exists but UICHECK_MASTER_KEY is not set; refusing to store reports unencrypted", keyFile)
		}
		log.Println("Warning: No UICHECK_MASTER_KEY provided. Reports will be stored UNENCRYPTED.")
	}
	s := storage.New(dataDir, masterKey)
	s.EnableCompression(true)
	return s, nil
}
