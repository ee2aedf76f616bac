package bapp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegions(t *testing.T) {
	env := testEnv{}

	assert.Equal(t, "us-east-1", LocalRegion()(env))
	assert.Equal(t, "eu-west-1", PrimaryRegion()(env))
	assert.Equal(t, "ap-south-1", FixedRegion("ap-south-1")(env))
}
