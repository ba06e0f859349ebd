// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

/*
Package controller assembles and runs the addon host.

# Architecture

The Controller wires the subsystems in this order:

  - Telemetry: tracer and meter providers from [tracing.NewProvider]
  - Route table: the single live table every request is dispatched through
  - Base routes: landing page, login, health, version, schema, metrics and
    the lifecycle endpoints, bound first and owned by routetable.HostOwner
  - Engine: scans the addon directory, loads each unit, applies its guards
    and binds its routes, then checks operation ids across the table
  - File watcher: optional hot reload of changed units
  - HTTP server: CORS and panic recovery around the route table

# Usage

	cfg, _ := config.Load("")
	c, err := controller.New(ctx, cfg, controller.Options{Version: "1.0.0"})
	if err != nil {
	    log.Fatal(err)
	}

	// Start blocks until Shutdown is called
	go func() {
	    if err := c.Start(ctx); err != nil {
	        log.Fatal(err)
	    }
	}()

	c.Shutdown(context.Background())

An operation id collision found at startup is returned from Start before
anything is served.
*/
package controller
