package sink

import (
	"context"
	"slices"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/pkg/errors"
)

// Target says where samples go in an InfluxDB v2 server.
type Target struct {
	URL    string
	Org    string
	Bucket string
	Token  string
}

// Influx writes metric lines to InfluxDB v2 at second precision, one
// blocking request per line.
type Influx struct {
	client influxdb2.Client
	target Target
	write  api.WriteAPIBlocking
}

// NewInflux connects lazily; nothing goes over the network until the first
// write or bucket call. An empty Target.Bucket must be filled in with
// SelectBucket before writing.
func NewInflux(t Target) *Influx {
	opts := influxdb2.DefaultOptions().SetPrecision(time.Second)
	i := &Influx{
		client: influxdb2.NewClientWithOptions(t.URL, t.Token, opts),
		target: t,
	}
	if t.Bucket != "" {
		i.write = i.client.WriteAPIBlocking(t.Org, t.Bucket)
	}
	return i
}

// Target returns the current target.
func (i *Influx) Target() Target { return i.target }

func (i *Influx) WriteSample(ctx context.Context, measurement string, tags map[string]string, fields map[string]float64, ts int64) error {
	if i.write == nil {
		return errors.New("influx: no bucket selected")
	}
	f := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		f[k] = v
	}
	p := influxdb2.NewPoint(measurement, tags, f, time.Unix(ts, 0))
	return errors.Wrapf(i.write.WritePoint(ctx, p), "influx write to %s/%s", i.target.Org, i.target.Bucket)
}

// ListBuckets returns the names of the buckets in the target organization.
func (i *Influx) ListBuckets(ctx context.Context) ([]string, error) {
	bs, err := i.client.BucketsAPI().FindBucketsByOrgName(ctx, i.target.Org)
	if err != nil {
		return nil, errors.Wrap(err, "list buckets")
	}
	if bs == nil {
		return nil, nil
	}
	names := make([]string, 0, len(*bs))
	for _, b := range *bs {
		names = append(names, b.Name)
	}
	return names, nil
}

// SelectBucket points subsequent writes at the named bucket, which must
// exist.
func (i *Influx) SelectBucket(ctx context.Context, name string) error {
	names, err := i.ListBuckets(ctx)
	if err != nil {
		return err
	}
	if !slices.Contains(names, name) {
		return errors.Errorf("bucket %q not found in org %q", name, i.target.Org)
	}
	i.target.Bucket = name
	i.write = i.client.WriteAPIBlocking(i.target.Org, name)
	return nil
}

// CreateBucket creates a bucket with infinite retention. It fails if the
// name is taken.
func (i *Influx) CreateBucket(ctx context.Context, name string) error {
	names, err := i.ListBuckets(ctx)
	if err != nil {
		return err
	}
	if slices.Contains(names, name) {
		return errors.Errorf("bucket %q already exists", name)
	}
	org, err := i.client.OrganizationsAPI().FindOrganizationByName(ctx, i.target.Org)
	if err != nil {
		return errors.Wrapf(err, "find org %q", i.target.Org)
	}
	_, err = i.client.BucketsAPI().CreateBucketWithName(ctx, org, name)
	return errors.Wrapf(err, "create bucket %q", name)
}

// Close releases the HTTP client.
func (i *Influx) Close() {
	i.client.Close()
}
