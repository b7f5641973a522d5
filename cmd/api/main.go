/*
 * Copyright 2023-2025 Arcana Labs, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arcanaplatform/arcana/circuit"
	"github.com/arcanaplatform/arcana/common"
	"github.com/arcanaplatform/arcana/prover"
	"github.com/arcanaplatform/arcana/store"
	"github.com/arcanaplatform/arcana/store/providers"
	"github.com/arcanaplatform/arcana/toolchain"
	"github.com/arcanaplatform/arcana/tx"
)

const shutdownGracePeriod = time.Second * 10

func main() {
	artifacts, err := store.InitStore(providers.ArtifactProviderFilesystem, common.CircuitsDir)
	if err != nil {
		common.Log.Panicf("failed to initialize artifact store; %s", err.Error())
	}

	circuitToolchain := toolchain.InitNoirToolchain(common.NargoPath, common.ToolchainTimeout)
	backend := toolchain.InitBarretenbergBackend(common.BarretenbergPath, common.ToolchainTimeout)
	contracts := toolchain.InitSolcCompiler(common.SolcPath, common.ToolchainTimeout)

	manager := circuit.InitManager(artifacts, circuitToolchain, backend, contracts)
	prv := prover.InitProver(artifacts, circuitToolchain, backend)
	builder := tx.InitBuilder(common.NetworkEndpoints)

	if common.ConsumeNATSSubscriptions {
		circuit.RequireConsumers(manager)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	circuit.InstallAPI(r, manager, prv, builder)

	srv := &http.Server{
		Addr:    common.ListenAddr,
		Handler: r,
	}

	go func() {
		common.Log.Infof("api listening on %s", common.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			common.Log.Panicf("failed to serve api; %s", err.Error())
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	common.Log.Info("shutting down api")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		common.Log.Warningf("failed to shut down api gracefully; %s", err.Error())
	}
}
