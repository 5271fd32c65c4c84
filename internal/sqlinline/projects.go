package sqlinline

const projectColumns = `id, name, url, contract_address, run_id, research_status,
       structured_data, provenance, research_error, created_at, updated_at,
       previous_structured_data`

// QUpsertProject starts a new research run. The update branch is skipped while
// a run is processing, so no row comes back and the caller reports a conflict.
// The last completed extraction moves to previous_structured_data.
const QUpsertProject = `--sql a100311f-5620-40ad-8d84-8da9f02e2dc0
insert into projects (id, name, url, contract_address, run_id, research_status,
                      structured_data, provenance, research_error, created_at, updated_at)
values ($1::text, $2::text, $3::text, nullif($4::text, ''), $5::text, $6::text,
        null, $7::jsonb, null, $8::timestamptz, $8::timestamptz)
on conflict (id) do update set
    name = excluded.name,
    url = excluded.url,
    contract_address = excluded.contract_address,
    run_id = excluded.run_id,
    research_status = excluded.research_status,
    structured_data = null,
    previous_structured_data = coalesce(projects.structured_data, projects.previous_structured_data),
    provenance = excluded.provenance,
    research_error = null,
    updated_at = excluded.updated_at
where projects.research_status <> 'processing'
returning id, created_at, previous_structured_data;
`

const QSelectProject = `--sql b0b6635d-dff3-4063-a0c8-2764afe72a31
select ` + projectColumns + `
from projects
where id = $1::text;
`

// QTransitionProject is the only statement that changes research_status.
// $4 is the run id; it is stamped on entry to processing and must match on
// every later transition when non-empty.
const QTransitionProject = `--sql 77dbb7f7-0d8e-4696-8dac-b122264f3a1e
update projects set
    research_status = $3::text,
    run_id = case when $3::text = 'processing' and $4::text <> '' then $4::text else run_id end,
    structured_data = $5::jsonb,
    previous_structured_data = case when $3::text = 'completed' then null else previous_structured_data end,
    research_error = nullif($6::text, ''),
    updated_at = $7::timestamptz
where id = $1::text
  and research_status = $2::text
  and ($3::text = 'processing' or $4::text = '' or run_id = $4::text)
returning ` + projectColumns + `;
`

const QSaveProvenance = `--sql 18d9086f-cba0-4176-8c93-d3f0da05898b
update projects set
    provenance = $3::jsonb,
    updated_at = $4::timestamptz
where id = $1::text
  and ($2::text = '' or run_id = $2::text);
`

const QProjectExists = `--sql dbd6ae18-974b-4690-89cc-fe5c3739a720
select exists(select 1 from projects where id = $1::text);
`
