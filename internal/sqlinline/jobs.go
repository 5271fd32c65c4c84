package sqlinline

const jobColumns = `id, project_id, kind, status, backend, input, output, handle,
       attempts, error, deadline, created_at, updated_at, completed_at`

const QInsertJob = `--sql 1db2dc88-032d-443c-81bd-11e18992d965
insert into generation_jobs (id, project_id, kind, status, backend, input, output, handle,
                             attempts, error, deadline, created_at, updated_at, completed_at)
values ($1::uuid, $2::text, $3::text, $4::text, $5::text, $6::jsonb, $7::jsonb, nullif($8::text, ''),
        $9::int, $10::text, $11::timestamptz, $12::timestamptz, $13::timestamptz, $14::timestamptz);
`

const QSelectJob = `--sql 4771b365-371a-4490-a491-47dca2feb619
select ` + jobColumns + `
from generation_jobs
where id = $1::uuid;
`

// QUpdateJob writes a job only while it still has the status the caller read.
const QUpdateJob = `--sql 0bc35223-7202-416e-aade-97616a3b1485
update generation_jobs set
    status = $3::text,
    backend = $4::text,
    input = $5::jsonb,
    output = $6::jsonb,
    handle = nullif($7::text, ''),
    attempts = $8::int,
    error = $9::text,
    deadline = $10::timestamptz,
    updated_at = $11::timestamptz,
    completed_at = $12::timestamptz
where id = $1::uuid
  and status = $2::text;
`

const QJobExists = `--sql e2889133-4beb-4164-a68b-7a6e43435e45
select exists(select 1 from generation_jobs where id = $1::uuid);
`

const QListJobsByStatus = `--sql 0b4a475e-0d5f-4538-9e6f-fa872c7bde13
select ` + jobColumns + `
from generation_jobs
where status = $1::text
order by updated_at asc
limit $2::int;
`
