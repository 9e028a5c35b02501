/*
 * Copyright 2025 Carver Automation Corporation.
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

package discovery

import "strings"

// The keyword tables are data, not logic: extend them without touching the
// probes.

// posKeywords flag installed software, services, and processes as POS
// candidates.
var posKeywords = []string{
	"pos", "point of sale", "retail", "cash register", "checkout",
	"square", "shopify", "quickbooks", "sage", "dynamics",
	"ncr", "micros", "aloha", "toast", "revel", "lightspeed",
	"vend", "shopkeep", "clover", "talech", "loyverse",
	"erply", "epos", "tillpoint", "counterpoint", "aronium",
}

// excludedNames filters out system software that naive keyword matching
// would otherwise flag ("composer", "positron", GPU drivers with "toast"
// notifications and the like).
var excludedNames = []string{
	"chrome", "firefox", "edge", "opera", "safari", "explorer",
	"nvidia", "intel", "realtek", "amd", "geforce",
	"driver", "redistributable", "runtime", "update", "installer",
	"visual c++", "visual studio", "directx", ".net", "java",
	"defender", "antivirus", "mcafee", "avast", "norton", "kaspersky",
	"adobe", "onedrive", "dropbox", "teamviewer", "zoom",
	"composer", "positron", "repository", "exposure",
}

// posFilePatterns match executable and database file names during the
// filesystem sweep.
var posFilePatterns = []string{
	"pos", "retail", "cash", "checkout", "sales", "transactions", "invoice",
}

// posDatabaseKeywords qualify a database file name as POS-related.
var posDatabaseKeywords = []string{
	"pos", "retail", "sales", "transaction", "cash", "checkout",
	"inventory", "customer", "product", "invoice", "receipt",
}

// posTableKeywords qualify an embedded database by its table names.
var posTableKeywords = []string{
	"transaction", "sale", "receipt", "payment", "product",
	"customer", "inventory", "tax", "discount", "tender",
}

// posPorts are the listen ports worth inspecting for database-backed or
// HTTP-fronted POS services.
var posPorts = map[uint32]bool{
	1433: true, 3306: true, 5432: true,
	8080: true, 8443: true, 9090: true,
}

// knownPaths is the installation-path allowlist checked by the path probe.
var knownPaths = []struct {
	Path string
	Name string
}{
	{`C:\Program Files\NCR\Aloha`, "Aloha POS"},
	{`C:\Program Files\Micros\Res`, "Micros RES"},
	{`C:\Program Files\Square\Square Point of Sale`, "Square POS"},
	{`C:\Program Files\Shopify\Shopify POS`, "Shopify POS"},
	{`C:\Program Files\Intuit\QuickBooks Point of Sale`, "QuickBooks POS"},
	{`C:\Program Files\Sage\Sage 50`, "Sage 50"},
	{`C:\Program Files\Microsoft Dynamics`, "Microsoft Dynamics"},
	{`C:\Program Files\Toast\Toast POS`, "Toast POS"},
	{`C:\Program Files\Lightspeed`, "Lightspeed"},
	{`C:\Program Files\Vend`, "Vend POS"},
	{`C:\Program Files\Clover`, "Clover POS"},
	{`C:\Aronium`, "Aronium POS"},
	{`C:\POS`, "Generic POS"},
	{`C:\Retail`, "Generic Retail System"},
}

func matchesAny(value string, keywords []string) bool {
	value = strings.ToLower(value)

	for _, kw := range keywords {
		if strings.Contains(value, kw) {
			return true
		}
	}

	return false
}

// excluded reports whether a candidate name belongs to known non-POS
// software.
func excluded(name string) bool {
	return matchesAny(name, excludedNames)
}
