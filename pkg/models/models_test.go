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

package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompositeKeyIgnoresProbeKind(t *testing.T) {
	fromPath := DiscoveredSystem{
		Name:        "Aronium POS",
		Source:      SourcePath,
		InstallPath: `C:\Aronium`,
	}
	fromRegistry := DiscoveredSystem{
		Name:        "Aronium POS",
		Source:      SourceRegistry,
		InstallPath: `C:\Aronium`,
	}

	assert.Equal(t, fromPath.CompositeKey(), fromRegistry.CompositeKey())
}

func TestCompositeKeyCaseInsensitive(t *testing.T) {
	a := DiscoveredSystem{Name: "Aronium POS", InstallPath: `C:\Aronium`}
	b := DiscoveredSystem{Name: "ARONIUM POS", InstallPath: `c:\aronium`}

	assert.Equal(t, a.CompositeKey(), b.CompositeKey())
}

func TestCompositeKeyDistinguishesInstalls(t *testing.T) {
	a := DiscoveredSystem{Name: "Aronium POS", InstallPath: `C:\Aronium`}
	b := DiscoveredSystem{Name: "Aronium POS", InstallPath: `D:\Aronium`}

	assert.NotEqual(t, a.CompositeKey(), b.CompositeKey())
}

func TestSessionValid(t *testing.T) {
	now := time.Now()

	var nilSession *Session

	assert.False(t, nilSession.Valid(now))
	assert.False(t, (&Session{}).Valid(now))
	assert.True(t, (&Session{Token: "t"}).Valid(now))
	assert.True(t, (&Session{Token: "t", Expiry: now.Add(time.Hour)}).Valid(now))
	assert.False(t, (&Session{Token: "t", Expiry: now.Add(-time.Minute)}).Valid(now))
}

func TestSessionExpiringWithin(t *testing.T) {
	now := time.Now()
	threshold := 30 * time.Minute

	// No expiry on record means nothing to preempt.
	assert.False(t, (&Session{Token: "t"}).ExpiringWithin(now, threshold))

	soon := &Session{Token: "t", Expiry: now.Add(10 * time.Minute)}
	assert.True(t, soon.ExpiringWithin(now, threshold))

	later := &Session{Token: "t", Expiry: now.Add(2 * time.Hour)}
	assert.False(t, later.ExpiringWithin(now, threshold))
}

func TestDurationUnmarshalForms(t *testing.T) {
	var d Duration

	require.NoError(t, json.Unmarshal([]byte(`"45s"`), &d))
	assert.Equal(t, 45*time.Second, d.Std())

	require.NoError(t, json.Unmarshal([]byte(`60000000000`), &d))
	assert.Equal(t, time.Minute, d.Std())

	require.Error(t, json.Unmarshal([]byte(`"fast"`), &d))
	require.Error(t, json.Unmarshal([]byte(`true`), &d))
}

func TestDurationMarshalRoundTrip(t *testing.T) {
	out, err := json.Marshal(Duration(90 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(out))
}
