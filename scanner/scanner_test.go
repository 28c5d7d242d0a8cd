package scanner_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/srg/boks/internal/device"
	"github.com/srg/boks/internal/testutils"
	"github.com/srg/boks/scanner"
	"github.com/stretchr/testify/require"
	suitelib "github.com/stretchr/testify/suite"
)

type ScannerTestSuite struct {
	suitelib.Suite
	helper   *testutils.TestHelper
	platform *testutils.FakePlatform

	peer1, peer2, other device.Peer
}

func (suite *ScannerTestSuite) SetupTest() {
	suite.helper = testutils.NewTestHelper(suite.T())
	suite.platform = testutils.NewFakePlatform()

	suite.peer1 = device.Peer{Address: "AA:BB:CC:DD:EE:FF", Alias: "SOUNDBOKS Kitchen"}
	suite.peer2 = device.Peer{Address: "11:22:33:44:55:66", Alias: "#Backyard"}
	suite.other = device.Peer{Address: "99:88:77:66:55:44", Alias: "Headphones"}
}

func (suite *ScannerTestSuite) advertiseAll() {
	suite.platform.Advertise(suite.peer1)
	suite.platform.Advertise(suite.peer2)
	suite.platform.Advertise(suite.other)
	suite.platform.Advertise(suite.peer1)
}

func (suite *ScannerTestSuite) TestNewScanner() {
	suite.Run("creates scanner with provided logger", func() {
		s, err := scanner.NewScanner(suite.platform, suite.helper.Logger)

		suite.NoError(err)
		suite.NotNil(s)
	})

	suite.Run("creates scanner with nil logger", func() {
		s, err := scanner.NewScanner(suite.platform, nil)

		suite.NoError(err)
		suite.NotNil(s)
	})

	suite.Run("rejects missing source", func() {
		_, err := scanner.NewScanner(nil, nil)

		suite.ErrorIs(err, device.ErrUnsupported)
	})
}

func (suite *ScannerTestSuite) TestDefaultScanOptions() {
	opts := scanner.DefaultScanOptions()

	suite.NotNil(opts)
	suite.Equal(10*time.Second, opts.Duration)
	suite.False(opts.AllDevices)
	suite.Nil(opts.AllowList)
	suite.Nil(opts.BlockList)
}

func (suite *ScannerTestSuite) TestScannerFiltering() {
	kitchen := device.Device{Address: "AA:BB:CC:DD:EE:FF", Name: "Kitchen"}
	backyard := device.Device{Address: "11:22:33:44:55:66", Name: "Backyard"}
	headphones := device.Device{Address: "99:88:77:66:55:44", Name: "Headphones"}

	tests := []struct {
		name            string
		scanOptions     *scanner.ScanOptions
		expectedDevices []device.Device
	}{
		{
			name:            "includes only speakers with no filters",
			scanOptions:     &scanner.ScanOptions{},
			expectedDevices: []device.Device{backyard, kitchen},
		},
		{
			name:            "includes every peer when asked",
			scanOptions:     &scanner.ScanOptions{AllDevices: true},
			expectedDevices: []device.Device{backyard, headphones, kitchen},
		},
		{
			name: "excludes device on block list",
			scanOptions: &scanner.ScanOptions{
				BlockList: []string{"aa:bb:cc:dd:ee:ff"},
			},
			expectedDevices: []device.Device{backyard},
		},
		{
			name: "includes device on allow list",
			scanOptions: &scanner.ScanOptions{
				AllowList: []string{"AA:BB:CC:DD:EE:FF"},
			},
			expectedDevices: []device.Device{kitchen},
		},
		{
			name: "excludes device not on allow list",
			scanOptions: &scanner.ScanOptions{
				AllowList: []string{"FF:EE:DD:CC:BB:AA"},
			},
			expectedDevices: []device.Device{},
		},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			suite.platform = testutils.NewFakePlatform()
			suite.advertiseAll()

			s, err := scanner.NewScanner(suite.platform, suite.helper.Logger)
			require.NoError(suite.T(), err)

			tt.scanOptions.Duration = 100 * time.Millisecond
			devices, err := s.Scan(context.Background(), tt.scanOptions, nil)

			require.NoError(suite.T(), err, "Scan MUST complete without error")
			suite.Equal(tt.expectedDevices, devices, "results MUST be filtered and sorted by name")
		})
	}
}

func (suite *ScannerTestSuite) TestScanReportsEventsAndPhases() {
	// GOAL: Verify progress phases and new/updated events are reported
	//
	// TEST SCENARIO: advertise kitchen twice and backyard → Scanning, Processing results → New, New, Updated

	suite.advertiseAll()
	s, err := scanner.NewScanner(suite.platform, suite.helper.Logger)
	suite.Require().NoError(err)

	var phases []string
	_, err = s.Scan(context.Background(), &scanner.ScanOptions{Duration: 100 * time.Millisecond}, func(phase string) {
		phases = append(phases, phase)
	})
	suite.Require().NoError(err)
	suite.Equal([]string{"Scanning", "Processing results"}, phases)

	var types []scanner.DeviceEventType
	for len(types) < 3 {
		select {
		case ev := <-s.Events():
			types = append(types, ev.Type)
		case <-time.After(time.Second):
			suite.Require().FailNow("MUST report three events")
		}
	}
	suite.Equal([]scanner.DeviceEventType{scanner.EventNew, scanner.EventNew, scanner.EventUpdated}, types)
}

func (suite *ScannerTestSuite) TestScanFailure() {
	suite.platform.SetScanError(device.ErrBluetoothOff)
	s, err := scanner.NewScanner(suite.platform, suite.helper.Logger)
	suite.Require().NoError(err)

	_, err = s.Scan(context.Background(), nil, nil)
	suite.True(errors.Is(err, device.ErrBluetoothOff), "scan error MUST be surfaced")
}

func (suite *ScannerTestSuite) TestCallerCancelEndsScan() {
	s, err := scanner.NewScanner(suite.platform, suite.helper.Logger)
	suite.Require().NoError(err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	devices, err := s.Scan(ctx, &scanner.ScanOptions{Duration: time.Hour}, nil)

	suite.NoError(err, "cancelled scan MUST return collected devices")
	suite.Empty(devices)
	suite.Less(time.Since(start), time.Second)
}

// TestScannerTestSuite runs the test suite using testify/suite
func TestScannerTestSuite(t *testing.T) {
	suitelib.Run(t, new(ScannerTestSuite))
}
